package ledger

import (
	"errors"
	"fmt"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTypeIn represents an inbound movement (batch intake).
	MovementTypeIn MovementType = "IN"
	// MovementTypeOut represents an outbound movement (shipment).
	MovementTypeOut MovementType = "OUT"
	// MovementTypeReturn represents stock flowing back from a return.
	MovementTypeReturn MovementType = "RETURN"
	// MovementTypeAdjust indicates manual adjustments.
	MovementTypeAdjust MovementType = "ADJUST"
)

// Batch is a dated lot of a product with its own expiry and quantity. The
// batch number is unique per product, not globally. A batch with quantity 0
// stays visible in history but is excluded from allocation candidates.
type Batch struct {
	ID         int64
	ProductID  int64
	BatchNo    string
	ExpiryDate *time.Time
	Quantity   int64
	Location   string
	CreatedAt  time.Time
}

// Movement is an auditable ledger event describing one quantity change.
type Movement struct {
	ID         int64
	BatchID    int64
	ProductID  int64
	Type       MovementType
	QtyChange  int64
	RefModule  string
	RefID      string
	ActorID    string
	OccurredAt time.Time
}

// MovementRef ties a quantity change to its originating operation.
type MovementRef struct {
	Type      MovementType
	RefModule string
	RefID     string
	ActorID   string
}

// CreateBatchInput describes a new batch intake.
type CreateBatchInput struct {
	ProductID  int64
	BatchNo    string
	ExpiryDate *time.Time
	Quantity   int64
	Location   string
	ActorID    string
}

// QuantityChange requests one batch adjustment inside a ledger transaction.
type QuantityChange struct {
	BatchID int64
	Delta   int64
}

// InsufficientStockError is returned when an adjustment would drive a batch
// quantity negative. It carries enough structure for the caller to retry with
// a smaller quantity or accept partial fulfilment.
type InsufficientStockError struct {
	ProductID int64
	BatchID   int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %d batch %d: requested %d, available %d",
		e.ProductID, e.BatchID, e.Requested, e.Available)
}

var (
	// ErrBatchNotFound indicates a missing batch row.
	ErrBatchNotFound = errors.New("ledger: batch not found")
	// ErrDuplicateBatch indicates the batch number already exists for the product.
	ErrDuplicateBatch = errors.New("ledger: batch number already exists for product")
	// ErrInvalidQuantity indicates an invalid quantity or delta.
	ErrInvalidQuantity = errors.New("ledger: invalid quantity")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("ledger: invalid input")
)
