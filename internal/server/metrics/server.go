package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/recordkeeper/internal/logging"
)

// ReadinessChecker reports whether a dependency is reachable.
type ReadinessChecker interface {
	PingContext(ctx context.Context) error
}

// Server serves /metrics and the health probes.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

func NewServer(addr string, logger logging.Logger, ready ReadinessChecker) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(ready),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("module", "metrics_server"),
	}
}

// NewRouter builds the probe and metrics routes.
func NewRouter(ready ReadinessChecker) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok", "")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if ready == nil {
			writeStatus(w, http.StatusOK, "ok", "")
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := ready.PingContext(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "fail", err.Error())
			return
		}
		writeStatus(w, http.StatusOK, "ok", "")
	})
	return r
}

func writeStatus(w http.ResponseWriter, code int, status, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	}{status, msg})
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting metrics server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
