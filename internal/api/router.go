package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the API under /api behind request logging and the limiter.
func NewRouter(h *Handler, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Mount("/", h.Routes())
	})

	return r
}
