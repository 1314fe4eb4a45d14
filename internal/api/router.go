package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/keyscan/internal/keyservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *keyservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Octave.
	r.Get("/octave", h.Octave)
	r.Post("/calibrate", h.Calibrate)

	// Frames.
	r.Get("/frames", h.ListFrames)
	r.Post("/frames", h.UploadFrame)
	r.Post("/frames/{name}/process", h.ProcessFrame)
	r.Delete("/frames/{name}", h.DeleteFrame)

	// History.
	r.Get("/history", h.History)
	r.Get("/recording.mid", h.Recording)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
