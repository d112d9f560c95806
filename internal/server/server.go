// Package server exposes the engine's prometheus collectors over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the optional metrics listener. It serves /metrics and
// /health and nothing else; the engine itself has no network surface.
type Server struct {
	logger *zap.Logger
	http   *http.Server
}

// NewServer builds an unstarted listener on addr
func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	return &Server{
		logger: logger.Named("metrics-server"),
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves on its own goroutine until Stop is called. Listen
// failures are logged, not fatal: metrics are an observation aid and
// must never sink a batch run.
func (s *Server) Start() {
	s.logger.Info("metrics listener starting", zap.String("addr", s.http.Addr))

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down, waiting for in-flight scrapes
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("metrics listener stopping")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics listener: %w", err)
	}
	return nil
}
