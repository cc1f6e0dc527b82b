package draft

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Item is one candidate order line in a draft. Lines are keyed by the
// (product, batch) composite; a second write for the same key replaces the
// line instead of duplicating it.
type Item struct {
	ProductID   int64           `json:"product_id"`
	BatchID     *int64          `json:"batch_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SupplierID  int64           `json:"supplier_id"`
	Highlight   bool            `json:"highlight"`
}

// LineTotal returns quantity times unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// sameKey reports whether two items target the same (product, batch) line.
func (i Item) sameKey(other Item) bool {
	if i.ProductID != other.ProductID {
		return false
	}
	if (i.BatchID == nil) != (other.BatchID == nil) {
		return false
	}
	return i.BatchID == nil || *i.BatchID == *other.BatchID
}

// SupplierGroup is one supplier partition of a draft, ordered by the first
// appearance of the supplier among the draft lines.
type SupplierGroup struct {
	SupplierID int64           `json:"supplier_id"`
	Items      []Item          `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// View is the authoritative draft state returned after every read or write.
type View struct {
	SessionID         string          `json:"session_id"`
	Version           int64           `json:"version"`
	Items             []Item          `json:"items"`
	GroupedBySupplier []SupplierGroup `json:"grouped_by_supplier"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

// Mutation is one versioned write against a draft line. Seq 0 asks the store
// to assign the next version; any other Seq must be newer than the version
// already recorded for the session or the write is dropped.
type Mutation struct {
	ProductID   int64
	BatchID     *int64
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal
	SupplierID  int64
	Highlight   bool
	Seq         int64
}

var (
	// ErrStaleWrite marks a mutation older than the session's current
	// version. The store swallows it and returns the authoritative view;
	// it never crosses the store boundary.
	ErrStaleWrite = errors.New("draft: stale write")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("draft: invalid input")
	// ErrConcurrentUpdate indicates the optimistic write loop gave up.
	ErrConcurrentUpdate = errors.New("draft: too many concurrent updates")
)

// materialize derives the view for a payload: supplier groups partitioned in
// first-appearance order and the running total across all lines.
func materialize(sessionID string, p payload) View {
	view := View{
		SessionID:         sessionID,
		Version:           p.Version,
		Items:             append([]Item{}, p.Items...),
		GroupedBySupplier: []SupplierGroup{},
		TotalAmount:       decimal.Zero,
	}

	index := map[int64]int{}
	for _, item := range p.Items {
		line := item.LineTotal()
		view.TotalAmount = view.TotalAmount.Add(line)

		pos, ok := index[item.SupplierID]
		if !ok {
			pos = len(view.GroupedBySupplier)
			index[item.SupplierID] = pos
			view.GroupedBySupplier = append(view.GroupedBySupplier, SupplierGroup{
				SupplierID: item.SupplierID,
				Subtotal:   decimal.Zero,
			})
		}
		group := &view.GroupedBySupplier[pos]
		group.Items = append(group.Items, item)
		group.Subtotal = group.Subtotal.Add(line)
	}
	return view
}
