package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

// Runner executes one job run and reports readiness.
type Runner interface {
	sharedobs.ReadinessChecker
	Run(ctx context.Context) domain.RunResult
}

// Server exposes the job trigger alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	runner     Runner
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /invoke, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, runner Runner, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			// No WriteTimeout: an /invoke response is written when the run ends.
		},
		runner: runner,
		logger: logger,
	}

	mux.HandleFunc("POST /invoke", s.handleInvoke)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(runner))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleInvoke runs the job once. A dropped client connection does not abort
// the run; the run's own deadline bounds it.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	result := s.runner.Run(context.WithoutCancel(r.Context()))
	resp := result.Response()
	s.logger.Info("invocation finished", "run_id", result.RunID, "status", resp.StatusCode)
	sharedobs.WriteJSON(w, resp.StatusCode, resp)
}
