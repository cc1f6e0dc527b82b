package fulfillment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Outbound is a shipment header. Ledger decrements, the header and its
// per-batch lines always commit together.
type Outbound struct {
	ID        int64          `json:"id"`
	Reference string         `json:"reference"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	Lines     []OutboundLine `json:"lines"`
}

// OutboundLine records how much of one batch went out. ReturnedQty is derived
// from return rows at read time.
type OutboundLine struct {
	ID          int64     `json:"id"`
	OutboundID  int64     `json:"outbound_id"`
	ProductID   int64     `json:"product_id"`
	BatchID     int64     `json:"batch_id"`
	BatchNo     string    `json:"batch_no"`
	Quantity    int64     `json:"quantity"`
	ReturnedQty int64     `json:"returned_qty"`
	OutboundAt  time.Time `json:"outbound_at"`
}

// RequestItem asks for an outbound quantity of one product.
type RequestItem struct {
	ProductID int64
	Quantity  int64
}

// OutboundRequest describes one outbound call. Reference scopes the
// idempotency keys so item retries never decrement twice.
type OutboundRequest struct {
	Reference    string
	Items        []RequestItem
	AllowPartial bool
}

// FailedItem reports one item that could not be processed, with enough
// structure for the caller to retry, split or abort. BatchID is set on
// return failures only, outbound requests are keyed by product.
type FailedItem struct {
	ProductID int64  `json:"product_id"`
	BatchID   int64  `json:"batch_id,omitempty"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Reason    string `json:"reason"`
}

// OutboundResult always reports succeeded and failed items distinctly.
type OutboundResult struct {
	OutboundID int64          `json:"outbound_id,omitempty"`
	Succeeded  []OutboundLine `json:"succeeded"`
	Failed     []FailedItem   `json:"failed"`
}

// ReturnItem asks to return a quantity of one (product, batch) pair against
// prior outbounds. The batch named here is the batch credited back.
type ReturnItem struct {
	ProductID       int64
	BatchID         int64
	Quantity        int64
	RefundUnitPrice decimal.Decimal
}

// ReturnRequest describes one return call. OutboundID optionally pins the
// return to a single shipment; when zero the returned quantity reconciles
// against every shipment of that batch, oldest outbound first.
type ReturnRequest struct {
	Reference  string
	OutboundID int64
	Items      []ReturnItem
}

// ReturnRecord ties a returned quantity back to the outbound line it
// reconciles against.
type ReturnRecord struct {
	ID             int64           `json:"id"`
	OutboundLineID int64           `json:"outbound_line_id"`
	OutboundID     int64           `json:"outbound_id"`
	ProductID      int64           `json:"product_id"`
	BatchID        int64           `json:"batch_id"`
	Quantity       int64           `json:"quantity"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ReturnResult always reports succeeded and failed items distinctly.
type ReturnResult struct {
	Succeeded []ReturnRecord `json:"succeeded"`
	Failed    []FailedItem   `json:"failed"`
}

// OutboundRejectedError reports a whole-call failure when partial processing
// was not requested. Nothing was committed.
type OutboundRejectedError struct {
	Failed []FailedItem
}

func (e *OutboundRejectedError) Error() string {
	return fmt.Sprintf("fulfillment: outbound rejected, %d item(s) short on stock", len(e.Failed))
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("fulfillment: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("fulfillment: invalid input")
)
