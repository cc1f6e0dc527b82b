package fulfillment

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers outbound and return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/outbounds", h.handleOutbound)
	r.Get("/outbounds/{outboundID}", h.handleGetOutbound)
	r.Get("/outbounds/{outboundID}/returns", h.handleListReturns)
	r.Post("/returns", h.handleReturn)
}
