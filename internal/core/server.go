// Package core provides the HTTP chassis for the pushgate ops API.
// It creates a chi router and enforces cross-cutting concerns -- panic
// recovery, timeouts, request correlation, security headers, structured
// request logging, and admin authentication -- before requests reach
// domain-specific handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pushgate/internal/auth"
	"pushgate/internal/config"
)

// Server encapsulates all dependencies for the ops API, allowing for easy
// injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	AdminKeys    *auth.Verifier
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point
	// (main.go). This indirection avoids import cycles between core and
	// handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Internal router
	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a "fail-fast" check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes or
// equivalent) after construction. This separation allows tests to customize
// route registration.
func NewServer(cfg *config.Config, logger *slog.Logger, adminKeys *auth.Verifier) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if adminKeys == nil {
		return nil, fmt.Errorf("admin key verifier must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		AdminKeys: adminKeys,
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router, for use with
// http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
