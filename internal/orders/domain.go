package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// allowedTransitions encodes the order state machine. Completed and rejected
// are terminal; rejection is only reachable from pending.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected},
	StatusConfirmed: {StatusCompleted},
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether the value is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// ReasonCode tags rejections and confirmed-order adjustments.
type ReasonCode string

const (
	ReasonStockout    ReasonCode = "stockout"
	ReasonPriceChange ReasonCode = "price-change"
	ReasonOther       ReasonCode = "other"
)

// Valid reports whether the value is a known reason code.
func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonStockout, ReasonPriceChange, ReasonOther:
		return true
	}
	return false
}

// Order is immutable once created except for status transitions, rejection
// details and adjustment deltas. Item snapshots never change.
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	SupplierID      int64           `json:"supplier_id"`
	OrderedBy       string          `json:"ordered_by"`
	Status          Status          `json:"status"`
	Memo            string          `json:"memo"`
	RejectionReason *ReasonCode     `json:"rejection_reason,omitempty"`
	RejectionNote   string          `json:"rejection_note,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Items           []OrderItem     `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is a price/quantity snapshot frozen at finalize time.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	BatchID     *int64          `json:"batch_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Adjustment records a supplier-side correction against a confirmed order
// item as a delta. The original snapshot stays untouched.
type Adjustment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	OrderItemID int64           `json:"order_item_id"`
	QtyDelta    int64           `json:"qty_delta"`
	PriceDelta  decimal.Decimal `json:"price_delta"`
	Reason      ReasonCode      `json:"reason"`
	Note        string          `json:"note"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	Page       int
	Limit      int
	Status     Status
	SupplierID int64
}

// InvalidTransitionError reports a status change the state machine forbids.
// It is always a caller bug and never retried.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("orders: invalid status transition %s -> %s", e.From, e.To)
}

var (
	// ErrEmptyDraft indicates finalize was called on a draft without items.
	ErrEmptyDraft = errors.New("orders: draft has no items")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("orders: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("orders: invalid input")
	// ErrDuplicateNumber indicates an order number collision.
	ErrDuplicateNumber = errors.New("orders: duplicate order number")
)
