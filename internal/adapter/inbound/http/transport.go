package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ObservabilityServer is CLIP's Observability component (spec.md §4.K): a
// small HTTP server exposing /metrics (Prometheus) and /healthz, entirely
// separate from the MCP protocol session the client speaks over stdio.
// Scoped down from the teacher's HTTPTransport (internal/adapter/inbound/
// http/transport.go), which multiplexes the MCP session itself, admin API,
// and HTTP gateway onto the same listener — CLIP's client transport is
// stdio-only, so this server carries observability routes exclusively.
type ObservabilityServer struct {
	addr          string
	registry      *prometheus.Registry
	healthChecker *HealthChecker
	logger        *slog.Logger
	server        *http.Server
}

// NewObservabilityServer creates an ObservabilityServer. registry should be
// the same *prometheus.Registry passed to NewMetrics so /metrics reports
// every collector registered on it.
func NewObservabilityServer(addr string, registry *prometheus.Registry, healthChecker *HealthChecker, logger *slog.Logger) *ObservabilityServer {
	return &ObservabilityServer{
		addr:          addr,
		registry:      registry,
		healthChecker: healthChecker,
		logger:        logger,
	}
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully with a 10s deadline.
func (s *ObservabilityServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	mux.Handle("/healthz", s.healthChecker.Handler())

	s.server = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("observability server listening", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// NewRegistry builds a fresh Prometheus registry with the standard Go/
// process collectors, following the teacher's Start() setup.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
