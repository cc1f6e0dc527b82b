package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lotline-erp/lotline-erp/internal/platform/httpx"
	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// Handler wires HTTP endpoints for the batch ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type createBatchRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	BatchNo    string `json:"batch_no" validate:"required"`
	ExpiryDate string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Quantity   int64  `json:"quantity" validate:"gte=0"`
	Location   string `json:"location"`
}

type adjustRequest struct {
	Delta int64  `json:"delta" validate:"required"`
	Note  string `json:"note"`
}

type batchResponse struct {
	ID         int64   `json:"id"`
	ProductID  int64   `json:"product_id"`
	BatchNo    string  `json:"batch_no"`
	ExpiryDate *string `json:"expiry_date"`
	Quantity   int64   `json:"quantity"`
	Location   string  `json:"location"`
	CreatedAt  string  `json:"created_at"`
}

func toBatchResponse(b Batch) batchResponse {
	resp := batchResponse{
		ID:        b.ID,
		ProductID: b.ProductID,
		BatchNo:   b.BatchNo,
		Quantity:  b.Quantity,
		Location:  b.Location,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
	if b.ExpiryDate != nil {
		formatted := b.ExpiryDate.Format("2006-01-02")
		resp.ExpiryDate = &formatted
	}
	return resp
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	batches, err := h.service.ListBatches(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": out})
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateBatchInput{
		ProductID: req.ProductID,
		BatchNo:   req.BatchNo,
		Quantity:  req.Quantity,
		Location:  req.Location,
		ActorID:   shared.ActorFromContext(r.Context()),
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expiry date")
			return
		}
		input.ExpiryDate = &expiry
	}
	batch, err := h.service.CreateBatch(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch))
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch, err := h.service.AdjustQuantity(r.Context(), batchID, req.Delta, MovementRef{
		Type:      MovementTypeAdjust,
		RefModule: "LEDGER",
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), batchID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Stock", insufficient.Error(), map[string]any{
			"product_id": insufficient.ProductID,
			"batch_id":   insufficient.BatchID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateBatch):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
