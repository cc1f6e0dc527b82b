package ledger

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{productID}/batches", h.handleListBatches)
	r.Post("/batches", h.handleCreateBatch)
	r.Post("/batches/{batchID}/adjust", h.handleAdjust)
	r.Get("/batches/{batchID}/movements", h.handleListMovements)
}
