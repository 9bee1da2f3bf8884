// Package httpapi exposes the note store and image presigning over the
// JSON API the sync clients speak.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/server/services"
)

// Deps holds what the router needs to serve requests.
type Deps struct {
	Notes     *services.NoteService
	Images    *services.ImageService
	SecretKey []byte
	Logger    logging.Logger
}

// NewRouter wires all API routes. Everything except /api/ping requires a
// bearer token.
func NewRouter(deps *Deps) http.Handler {
	h := &handler{
		notes:  deps.Notes,
		images: deps.Images,
		secret: deps.SecretKey,
		log:    deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", h.ping)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Route("/api/notes", func(r chi.Router) {
			r.Get("/dates", h.getDates)
			r.Get("/changes", h.getChanges)
			r.Get("/{date}", h.getNote)
			r.Post("/", h.pushNote)
			r.Delete("/", h.deleteNote)
		})

		r.Route("/api/images", func(r chi.Router) {
			r.Post("/presign-put", h.presignPut)
			r.Post("/presign-get", h.presignGet)
		})
	})

	return r
}
