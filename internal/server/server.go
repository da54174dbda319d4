// Package server exposes the OCR proxy over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig holds configuration for creating a new Server.
type ServerConfig struct {
	Addr   string
	Vision http.Handler
	Health *HealthHandler

	// Metrics is optional; /metrics is not mounted when nil.
	Metrics http.Handler

	Logger zerolog.Logger
}

// Server holds the router and the underlying http.Server.
type Server struct {
	Router     chi.Router
	httpServer *http.Server
	log        zerolog.Logger
}

// New creates a chi router with all routes configured.
func New(cfg ServerConfig) *Server {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(chiMiddleware.Recoverer)

	s := &Server{
		Router: r,
		log:    cfg.Logger,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       90 * time.Second,
		},
	}

	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg ServerConfig) {
	r := s.Router

	if cfg.Health != nil {
		r.Route("/health", func(r chi.Router) {
			r.Get("/", cfg.Health.Health)
			r.Get("/readiness", cfg.Health.Readiness)
		})
	}

	// The handler dispatches on method itself, so every method is routed to it.
	r.Handle("/vision", cfg.Vision)
	r.Handle("/api/vision", cfg.Vision)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
