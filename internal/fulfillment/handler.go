package fulfillment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotline-erp/lotline-erp/internal/ledger"
	"github.com/lotline-erp/lotline-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for outbounds and returns.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs fulfillment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type outboundRequest struct {
	Reference    string `json:"reference" validate:"required"`
	AllowPartial bool   `json:"allow_partial"`
	Items        []struct {
		ProductID int64 `json:"product_id" validate:"required,gt=0"`
		Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

type returnRequest struct {
	Reference  string `json:"reference" validate:"required"`
	OutboundID int64  `json:"outbound_id"`
	Items      []struct {
		ProductID       int64  `json:"product_id" validate:"required,gt=0"`
		BatchID         int64  `json:"batch_id" validate:"required,gt=0"`
		Quantity        int64  `json:"quantity" validate:"required,gt=0"`
		RefundUnitPrice string `json:"refund_unit_price" validate:"required"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleOutbound(w http.ResponseWriter, r *http.Request) {
	var req outboundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	request := OutboundRequest{Reference: req.Reference, AllowPartial: req.AllowPartial}
	for _, item := range req.Items {
		request.Items = append(request.Items, RequestItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := h.service.Outbound(r.Context(), request)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	request := ReturnRequest{Reference: req.Reference, OutboundID: req.OutboundID}
	for _, item := range req.Items {
		refund, err := decimal.NewFromString(item.RefundUnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid refund unit price")
			return
		}
		request.Items = append(request.Items, ReturnItem{
			ProductID:       item.ProductID,
			BatchID:         item.BatchID,
			Quantity:        item.Quantity,
			RefundUnitPrice: refund,
		})
	}

	result, err := h.service.Return(r.Context(), request)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetOutbound(w http.ResponseWriter, r *http.Request) {
	outboundID, err := strconv.ParseInt(chi.URLParam(r, "outboundID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid outbound id")
		return
	}
	outbound, err := h.service.GetOutbound(r.Context(), outboundID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, outbound)
}

func (h *Handler) handleListReturns(w http.ResponseWriter, r *http.Request) {
	outboundID, err := strconv.ParseInt(chi.URLParam(r, "outboundID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid outbound id")
		return
	}
	records, err := h.service.ListReturns(r.Context(), outboundID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"returns": records})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *OutboundRejectedError
	var insufficient *ledger.InsufficientStockError
	switch {
	case errors.As(err, &rejected):
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Stock", rejected.Error(), map[string]any{
			"failed": rejected.Failed,
		})
	case errors.As(err, &insufficient):
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Stock", insufficient.Error(), map[string]any{
			"product_id": insufficient.ProductID,
			"batch_id":   insufficient.BatchID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("fulfillment request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
