package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
const defaultRequestTimeout = 29 * time.Second

// RouteRegistrar mounts a group of domain handler routes onto the v1 router.
// Populated by the application entry point to avoid import cycles between
// core and handler packages.
type RouteRegistrar func(chi.Router)

// MountRoutes registers the global middleware chain and the route tree.
// Registrars mount the domain endpoints under /v1; the health check stays
// outside the versioned namespace and the auth chain.
func (s *Server) MountRoutes(registrars ...RouteRegistrar) {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeout(defaultRequestTimeout))
	s.router.Use(RequestID)
	s.router.Use(s.RequestLogger)

	s.router.Get("/healthz", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.RequireAuth)
		for _, mount := range registrars {
			mount(r)
		}
	})
}

// ContextTimeout sets a deadline on the request context so a stuck
// downstream call cannot hold the handler past the platform's hard timeout.
func ContextTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HandleHealth reports process liveness. Dependency health is observed via
// metrics, not this endpoint.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.Config.Service,
	})
}
