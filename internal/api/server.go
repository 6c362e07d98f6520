package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/maintenance"
	"github.com/sla-monitor/watch-server/internal/monitor"
	"github.com/sla-monitor/watch-server/internal/status"
	"github.com/sla-monitor/watch-server/internal/store"
)

// ServerConfig wires the API server.
type ServerConfig struct {
	ListenAddress string
	Port          int
	// AdminToken guards the admin routes; an empty token disables them.
	AdminToken   string
	MaxBodyBytes int64

	Store       *store.Store
	Reader      *status.Reader
	Scheduler   *monitor.Scheduler
	Maintenance *maintenance.Runner
	Log         *logrus.Entry
}

// Server wraps the HTTP server and mux for the status API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	log        *logrus.Entry
}

// NewServer creates an API server wired with all routes.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()

	// Public routes.
	mux.Handle("GET /healthz", HandleHealthz(cfg.Store))
	mux.Handle("GET /api/v1/status", HandleSystemStatus(cfg.Reader, cfg.Store, cfg.Scheduler))
	mux.Handle("GET /api/v1/services", HandleListServices(cfg.Store))
	mux.Handle("GET /api/v1/services/{id}/uptime", HandleUptime(cfg.Reader))
	mux.Handle("GET /api/v1/services/{id}/sla", HandleSLA(cfg.Reader))
	mux.Handle("GET /api/v1/services/{id}/trend", HandleTrend(cfg.Reader))
	mux.Handle("GET /api/v1/services/{id}/grid", HandleGrid(cfg.Reader))
	mux.Handle("GET /api/v1/services/{id}/checks", HandleChecks(cfg.Store))
	mux.Handle("GET /api/v1/sessions/latest", HandleLatestSession(cfg.Scheduler))

	// Admin routes, disabled entirely without a token.
	if cfg.AdminToken != "" {
		admin := http.NewServeMux()
		admin.Handle("POST /api/v1/services/{id}/probe", HandleProbeService(cfg.Scheduler))
		admin.Handle("POST /api/v1/maintenance/run", HandleRunMaintenance(cfg.Maintenance))

		limited := RequestBodyLimitMiddleware(cfg.MaxBodyBytes, admin)
		authed := AuthMiddleware(cfg.AdminToken, limited)
		mux.Handle("POST /api/v1/services/{id}/probe", authed)
		mux.Handle("POST /api/v1/maintenance/run", authed)
	}

	handler := RequestLogMiddleware(cfg.Log, RecoverMiddleware(cfg.Log, mux))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
		log:        cfg.Log,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("api server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
