// Package router sets up all HTTP routes and middleware chains for the
// contract builder API. Read and compile routes are public; authoring
// routes require a verified bearer token.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"contractbuilder/internal/handlers"
	"contractbuilder/internal/middleware"
)

// Deps are the handlers and middleware dependencies the router wires up.
type Deps struct {
	Templates *handlers.Templates
	Health    http.Handler
	Verifier  middleware.TokenVerifier
	// CompileLimiter throttles compile requests per client IP. Optional.
	CompileLimiter *middleware.RateLimiter
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Method(http.MethodGet, "/health", d.Health)

	r.Route("/api/templates", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Verifier))

		r.Get("/", d.Templates.List)
		r.Get("/{id}", d.Templates.Get)

		// Compilation spawns a compiler process per request.
		r.Group(func(r chi.Router) {
			if d.CompileLimiter != nil {
				r.Use(d.CompileLimiter.Middleware)
			}
			r.Post("/{id}/compile", d.Templates.Compile)
			r.Post("/{id}/pdf", d.Templates.PDF)
		})

		// Authoring.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/", d.Templates.Create)
			r.Put("/{id}", d.Templates.Update)
			r.Delete("/{id}", d.Templates.Delete)
			r.Post("/{id}/publish", d.Templates.Publish)
			r.Post("/{id}/unpublish", d.Templates.Unpublish)
			r.Get("/{id}/versions", d.Templates.Versions)
		})
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "BAD_REQUEST", "method "+r.Method+" not allowed")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
