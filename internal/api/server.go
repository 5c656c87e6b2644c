// Package api exposes the analyzer over HTTP.
//
// Endpoints:
//
//	GET  /health       liveness probe
//	GET  /ready        readiness probe (pings the database)
//	POST /api/analyze  analyze pages against template schemas
//	POST /api/load     ingest pages into the knowledge store
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/reqlens/reqlens/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents slow-header connections from
	// holding workers (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because a batch analysis holds the
	// connection through multiple model calls.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout closes stale keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the analyzer REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health  *HealthHandler
	analyze *AnalyzeHandler
	load    *LoadHandler
}

// NewServer registers all routes.
func NewServer(health *HealthHandler, analyze *AnalyzeHandler, load *LoadHandler, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		health:  health,
		analyze: analyze,
		load:    load,
	}

	s.health.RegisterRoutes(mux)
	s.analyze.RegisterRoutes(mux)
	s.load.RegisterRoutes(mux)

	return s
}

// Handler returns the routed handler with middleware applied.
// Order: recovery, request id, logging, routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
