// Package core provides the API chassis for the jobtrail quota service: a
// chi router with the cross-cutting middleware (request IDs, structured
// logging, panic recovery, authentication) applied before requests reach
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobtrail/internal/config"
	"jobtrail/internal/types"
)

// Authenticator resolves an opaque bearer token to an Actor. Identity is
// owned by the main application; this service only verifies and trusts.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Actor, error)
}

// Server bundles the chassis dependencies and the router.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator

	router *chi.Mux
}

// NewServer initializes the chassis. Routes are mounted separately so tests
// can register their own.
func NewServer(cfg *config.Config, logger *slog.Logger, auth Authenticator) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:        cfg,
		Logger:        logger,
		Validator:     NewValidator(),
		Authenticator: auth,
		router:        chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
