package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/drafts/{sessionID}/finalize", h.handleFinalize)
	r.Get("/orders", h.handleListOrders)
	r.Get("/orders/{orderID}", h.handleGetOrder)
	r.Post("/orders/{orderID}/confirm", h.handleConfirm)
	r.Post("/orders/{orderID}/complete", h.handleComplete)
	r.Post("/orders/{orderID}/reject", h.handleReject)
	r.Get("/orders/{orderID}/adjustments", h.handleListAdjustments)
	r.Post("/orders/{orderID}/adjustments", h.handleAddAdjustment)
}
