// Package server is the scraper's operator endpoint: Prometheus metrics and a
// liveness probe.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"PriceTracker/internal/metrics"
	"PriceTracker/pkg/logger"
)

// Server serves /metrics and /healthz.
type Server struct {
	metrics *metrics.Metrics
	// Health reports whether the scraper can make progress. Nil means always healthy.
	Health func() error
	log    zerolog.Logger
	http   *http.Server
}

// New returns a server that will listen on addr.
func New(addr string, m *metrics.Metrics) *Server {
	s := &Server{
		metrics: m,
		log:     logger.For("server"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler routes the endpoints. /metrics is mounted only when metrics exist.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	s.log.Info().Str("addr", s.http.Addr).Msg("starting metrics server")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	if s.Health != nil {
		if err := s.Health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
