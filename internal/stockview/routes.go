package stockview

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers stock view routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-views", h.handleOverview)
	r.Get("/products/{productID}/stock-view", h.handleProductView)
}
