package draft

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers draft session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/drafts/{sessionID}", h.handleGetDraft)
	r.Put("/drafts/{sessionID}/items", h.handleUpsertItem)
	r.Delete("/drafts/{sessionID}", h.handleClearDraft)
}
