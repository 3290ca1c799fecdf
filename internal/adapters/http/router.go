package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", handler.getHealth)
		r.Get("/device", handler.getDevice)
		r.Post("/migration/run", handler.runMigration)
		r.Route("/profiles/{profileID}", func(r chi.Router) {
			r.Get("/session", handler.getSession)
			r.Post("/session/start", handler.startSession)
			r.Post("/session/stop", handler.stopSession)
			r.Post("/session/break/start", handler.startBreak)
			r.Post("/session/break/end", handler.endBreak)
			r.Post("/sync", handler.syncProfile)
		})
	})
	return r
}
