package session

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers session routes. Static segments (cancel,
// current-question, conversation-history, export) take precedence over the
// {action} catch-all, so no wizard may name a step after them.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.StartSession)
		r.Get("/{id}", h.GetSession)
		r.Delete("/{id}", h.DeleteSession)
		r.Get("/{id}/current-question", h.CurrentQuestion)
		r.Get("/{id}/conversation-history", h.GetHistory)
		r.Post("/{id}/conversation-history", h.OverwriteHistory)
		r.Get("/{id}/export", h.ExportTranscript)
		r.Post("/{id}/cancel", h.CancelSession)
		r.Post("/{id}/{action}", h.SubmitStep)
	})

	r.Post("/transcriptions", h.Transcribe)
}
