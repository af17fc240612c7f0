package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet is the gateway's Prometheus surface, grounded on
// core/system_health_logging.go's HealthLogger (a dedicated registry plus
// one gauge/counter per tracked quantity, registered up front and mutated
// in place rather than recreated per scrape).
type metricsSet struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	rateLimitBlocked prometheus.Counter
	nodesGauge       prometheus.Gauge
	networksGauge    prometheus.Gauge
	thingsGauge      prometheus.Gauge
}

func newMetricsSet() *metricsSet {
	reg := prometheus.NewRegistry()
	m := &metricsSet{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashew_gateway_requests_total",
			Help: "Total HTTP requests handled by the gateway, by route and status class.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cashew_gateway_request_duration_seconds",
			Help: "Gateway request handling latency.",
		}, []string{"route"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cashew_gateway_active_sessions",
			Help: "Number of non-expired gateway sessions.",
		}),
		rateLimitBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cashew_gateway_rate_limit_blocked_total",
			Help: "Requests rejected by the per-IP rate limiter.",
		}),
		nodesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cashew_gateway_known_nodes",
			Help: "Nodes observed in the derived state projection.",
		}),
		networksGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cashew_gateway_known_networks",
			Help: "Networks observed in the derived state projection.",
		}),
		thingsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cashew_gateway_known_things",
			Help: "Things observed in the derived state projection.",
		}),
	}
	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.activeSessions,
		m.rateLimitBlocked, m.nodesGauge, m.networksGauge, m.thingsGauge,
	)
	return m
}
