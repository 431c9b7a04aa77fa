// Package metrics serves the Prometheus registry and the health endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "spamsweep_build_info",
	Help: "Build information, always 1.",
}, []string{"version"})

// Server exposes /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// Config holds configuration for the server.
type Config struct {
	Addr    string
	Version string
	Health  http.Handler
}

// NewServer creates a new metrics server.
func NewServer(cfg Config) *Server {
	buildInfo.WithLabelValues(cfg.Version).Set(1)

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(cfg.Health),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewHandler routes /metrics to the default Prometheus registry and
// /healthz to health, if set.
func NewHandler(health http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	if health != nil {
		mux.Handle("GET /healthz", health)
	}
	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}

	slog.Info("metrics server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
