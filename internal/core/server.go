// Package core provides the HTTP chassis for the ContractDesk API: the chi
// router, the middleware chain and the response helpers shared by every
// handler package.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contractdesk/internal/config"
)

// Server holds the router and the cross-cutting dependencies of the API.
// Domain routes are attached through V1RouteRegistrars so that handler
// packages can depend on core without a cycle.
type Server struct {
	Config           *config.Config
	Logger           *slog.Logger
	Validator        *Validator
	Metrics          MetricsCollector
	RateLimitStore   RateLimitStore
	IdempotencyStore IdempotencyStore
	HealthProbes     []HealthProbe

	V1RouteRegistrars []func(chi.Router)

	// closers run on Shutdown in registration order.
	closers []func() error

	router *chi.Mux
}

// NewServer builds a Server with an empty router. Routes are mounted later
// with MountRoutes, after the caller has attached stores and registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests and route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a resource to release when the server stops.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases registered resources. It keeps going after a failure and
// returns the first error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var first error
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing server resource", "error", err)
			if first == nil {
				first = fmt.Errorf("shutdown: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return first
}
