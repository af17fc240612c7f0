// Package gateway implements Cashew's HTTP/WebSocket external-collaborator
// contract (spec §6.4): the browser-facing surface that bridges ordinary
// HTTP requests into the P2P node underneath. Grounded on
// walletserver/routes/routes.go + walletserver/middleware/logger.go
// (router + logging middleware), generalized from gorilla/mux to
// go-chi/chi/v5 (the teacher declares chi as a direct dependency but never
// imports it), with a Prometheus registry modeled on
// core/system_health_logging.go's HealthLogger.
package gateway

import (
	"time"
)

// Config configures a gateway Server. Zero values fall back to the
// original implementation's GatewayConfig defaults
// (include/cashew/gateway/gateway_server.hpp).
type Config struct {
	ListenAddr string

	// CORSOrigin is the single Access-Control-Allow-Origin value; "*" if
	// unset, matching the original's cors_origin default.
	CORSOrigin string

	// SessionTTL is how long an authenticated session stays valid. The
	// distilled spec's prose says "1-hour session TTL" (§6.4) while its
	// constants table (§6.5) names SESSION_TIMEOUT=1800s; the original
	// source resolves this in favor of the prose — gateway_server.hpp's
	// GatewayConfig actually defaults session_timeout to 3600s, with
	// common.hpp's 1800s constant governing a different timeout (the
	// gossip/network layer's peer session, not the gateway's). Zero means
	// 1 hour.
	SessionTTL time.Duration

	// RequestsPerMinute and RequestsPerHour are the per-IP rate limit
	// budgets; zero means the spec defaults of 60 and 1000.
	RequestsPerMinute int
	RequestsPerHour   int

	// MaxBodyBytes caps request bodies; zero means the spec default of
	// 10 MiB.
	MaxBodyBytes int64
}

const (
	defaultSessionTTL       = time.Hour
	defaultRequestsPerMin   = 60
	defaultRequestsPerHour  = 1000
	defaultMaxBodyBytes     = 10 * 1024 * 1024
)

func (c Config) withDefaults() Config {
	if c.CORSOrigin == "" {
		c.CORSOrigin = "*"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMin
	}
	if c.RequestsPerHour <= 0 {
		c.RequestsPerHour = defaultRequestsPerHour
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}
