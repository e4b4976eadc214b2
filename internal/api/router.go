package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/multicare-dataset/website/internal/casehub"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *casehub.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ih := NewImageHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Search.
	r.Get("/search", h.Search)
	r.Get("/labels", h.Labels)

	// Dataset.
	r.Get("/cases/{caseID}", h.GetCase)
	r.Get("/images/{file}", ih.ServeFile)
	r.Get("/stats", h.Stats)

	// Query language tools.
	r.Post("/query/parse", h.ParseQuery)
	r.Post("/query/match", h.MatchQuery)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
