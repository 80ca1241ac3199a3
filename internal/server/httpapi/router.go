package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every route of h on a chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.observe)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Authorized by the link token or the stream-session cookie.
		r.Get("/public/{id}/{token}", h.publicDownload)
		r.Get("/public/{id}/{token}/info", h.publicInfo)
		r.Get("/files/{id}/stream", h.stream)
		r.Delete("/stream-session", h.endStreamSession)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Post("/files/upload", h.upload)
			r.Get("/files/{id}", h.info)
			r.Get("/files/{id}/download", h.download)
			r.Get("/files/{id}/thumbnail", h.thumbnail)
			r.Post("/files/{id}/public", h.makePublic)
			r.Delete("/files/{id}/public", h.removeLink)
			r.Post("/files/{id}/public/one-time", h.makeOneTimePublic)
			r.Delete("/files/{id}", h.deleteObject)

			r.Post("/stream-session", h.startStreamSession)
			r.Delete("/stream-session/devices/{deviceID}", h.revokeDevice)
		})
	})

	return r
}
