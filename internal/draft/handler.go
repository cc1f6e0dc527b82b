package draft

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotline-erp/lotline-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for draft sessions.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	validate *validator.Validate
}

// NewHandler constructs draft handler.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store, validate: validator.New()}
}

type upsertItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	BatchID     *int64 `json:"batch_id" validate:"omitempty,gt=0"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity" validate:"gte=0"`
	UnitPrice   string `json:"unit_price" validate:"required"`
	SupplierID  int64  `json:"supplier_id" validate:"required,gt=0"`
	Highlight   bool   `json:"highlight"`
	Seq         int64  `json:"seq" validate:"gte=0"`
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpsertItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req upsertItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || unitPrice.IsNegative() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit price")
		return
	}

	view, err := h.store.Upsert(r.Context(), sessionID, Mutation{
		ProductID:   req.ProductID,
		BatchID:     req.BatchID,
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		UnitPrice:   unitPrice,
		SupplierID:  req.SupplierID,
		Highlight:   req.Highlight,
		Seq:         req.Seq,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.store.Clear(r.Context(), sessionID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConcurrentUpdate):
		httpx.Problem(w, http.StatusConflict, "Conflict", "draft is being updated concurrently, retry")
	default:
		h.logger.Error("draft request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
