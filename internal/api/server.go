// Package api serves the trialscope operations as a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Aman-CERP/trialscope/internal/service"
)

// SessionHeader scopes requests to a client session.
const SessionHeader = "X-Session-ID"

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// HTTPMetrics receives request observations. *telemetry.Metrics satisfies it.
type HTTPMetrics interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
	Handler() http.Handler
}

// HealthFunc reports whether the backing store is usable.
type HealthFunc func(ctx context.Context) error

// Server routes HTTP requests to a Service.
type Server struct {
	svc      *service.Service
	sessions *service.Sessions
	metrics  HTTPMetrics
	health   HealthFunc
	mounts   map[string]http.Handler
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics sink and enables /metrics.
func WithMetrics(m HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealth sets the /healthz probe.
func WithHealth(fn HealthFunc) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithSessions shares a session registry with another transport.
func WithSessions(m *service.Sessions) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

// WithMount serves h under pattern, e.g. the MCP streamable transport at
// /mcp.
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) {
		if s.mounts == nil {
			s.mounts = make(map[string]http.Handler)
		}
		s.mounts[pattern] = h
	}
}

// NewServer creates a Server over svc.
func NewServer(svc *service.Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = service.NewSessions(service.DefaultMaxSessions)
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, s.accessLogMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	for pattern, h := range s.mounts {
		r.Mount(pattern, h)
	}
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
		r.Post("/verify", s.handleVerify)
		r.Post("/highlight", s.handleHighlight)
		r.Post("/override", s.handleOverride)
		r.Get("/trials/{nctID}/explain", s.handleExplain)
	})
	s.router = r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("http_server_stopping")
	return srv.Shutdown(shutdownCtx)
}
