package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"cashew/internal/access"
	"cashew/internal/ledger"
	"cashew/internal/network"
	"cashew/internal/node"
	"cashew/internal/renderer"
	"cashew/internal/state"
)

// Server is Cashew's HTTP/WebSocket gateway (spec §6.4), wired directly
// against a *node.Node the same way walletserver/main.go wires a
// controllers.WalletController straight off its services.Service.
type Server struct {
	cfg Config
	log *logrus.Logger

	ledger   *ledger.Ledger
	state    *state.Projector
	access   *access.Controller
	renderer *renderer.Renderer
	network  *network.Manager

	sessions *sessionStore
	limiter  *ipLimiterSet
	metrics  *metricsSet
	hub      *wsHub

	router chi.Router
	http   *http.Server

	startedAt     time.Time
	requestCount  atomic.Uint64
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	sweepStop chan struct{}
}

// NewServer builds a gateway bound to n's ledger, derived state, access
// controller, renderer, and network manager.
func NewServer(n *node.Node, cfg Config) *Server {
	cfg = cfg.withDefaults()
	log := n.Log()

	s := &Server{
		cfg:      cfg,
		log:      log,
		ledger:   n.Ledger,
		state:    n.State,
		access:   n.Access,
		renderer: n.Renderer,
		network:  n.Network,
		sessions: newSessionStore(cfg.SessionTTL),
		limiter:  newIPLimiterSet(cfg.RequestsPerMinute, cfg.RequestsPerHour),
		metrics:  newMetricsSet(),
		hub:      newWSHub(log),
	}
	s.router = s.routes()
	s.http = &http.Server{Addr: cfg.ListenAddr, Handler: s.router}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.logging)
	r.Use(s.cors)
	r.Use(s.rateLimit)
	r.Use(s.bodyLimit)
	r.Use(s.countRequest)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/networks", s.handleNetworks)
	r.Get("/api/networks/{id}", s.handleNetworkDetail)
	r.Get("/api/thing/{hash}", s.handleThing)
	r.Post("/api/auth", s.handleAuth)
	r.Get("/ws/events", s.handleWebSocket)
	return r
}

// countRequest increments the request counter the /api/status handler
// reports, mirroring the original's Statistics.total_requests.
func (s *Server) countRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		next.ServeHTTP(w, r)
	})
}

// Start launches the HTTP listener, the session-sweep loop, and the
// ledger-event WebSocket hub. It returns once the listener is bound;
// serving happens on a background goroutine, per the original's
// server_thread_.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.sweepStop = make(chan struct{})

	go s.sweepSessions()
	go s.hub.run(s.ledger.Subscribe())

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: listen: %w", err)
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the HTTP listener and background loops.
func (s *Server) Stop() error {
	if s.sweepStop != nil {
		close(s.sweepStop)
	}
	s.hub.stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}

// sweepSessions periodically evicts expired sessions and reports the
// active count to Prometheus, per spec §4.4-style "cleanup_sessions".
func (s *Server) sweepSessions() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case now := <-ticker.C:
			s.sessions.sweep(now)
			active, _, _ := s.sessions.counts()
			s.metrics.activeSessions.Set(float64(active))
		}
	}
}
