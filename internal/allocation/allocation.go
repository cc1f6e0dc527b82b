// Package allocation computes first-expires-first-out allocation plans.
// Plans are pure values: the allocator never mutates ledger state, and a plan
// must be consumed immediately because batch quantities may change between
// allocation and consumption.
package allocation

import (
	"sort"
	"time"
)

// Batch is the allocator's view of a physical batch.
type Batch struct {
	ID         int64
	BatchNo    string
	ExpiryDate *time.Time
	Quantity   int64
	CreatedAt  time.Time
}

// BatchAllocation assigns part of a request to a single batch.
type BatchAllocation struct {
	BatchID      int64
	BatchNo      string
	AllocatedQty int64
}

// Plan is the per-batch breakdown of how a requested quantity is satisfied.
// Shortfall is the portion that could not be covered by available stock.
type Plan struct {
	Allocations []BatchAllocation
	Shortfall   int64
}

// FullyAllocated reports whether the whole request was covered.
func (p Plan) FullyAllocated() bool {
	return p.Shortfall == 0
}

// TotalAllocated sums the allocated quantities.
func (p Plan) TotalAllocated() int64 {
	var total int64
	for _, a := range p.Allocations {
		total += a.AllocatedQty
	}
	return total
}

// Allocate walks batches in FEFO order and greedily assigns quantity until the
// request is satisfied or stock is exhausted. Batches without an expiry date
// sort last; equal expiry dates tie-break on creation time, then batch id, so
// the result is deterministic for identical inputs.
func Allocate(requestedQty int64, batches []Batch) Plan {
	if requestedQty <= 0 {
		return Plan{Allocations: []BatchAllocation{}}
	}

	candidates := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity > 0 {
			candidates = append(candidates, b)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return fefoLess(candidates[i], candidates[j])
	})

	remaining := requestedQty
	allocations := make([]BatchAllocation, 0, len(candidates))
	for _, b := range candidates {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, BatchAllocation{
			BatchID:      b.ID,
			BatchNo:      b.BatchNo,
			AllocatedQty: take,
		})
		remaining -= take
	}

	return Plan{Allocations: allocations, Shortfall: remaining}
}

// fefoLess orders batches earliest expiry first, nil expiry last, then oldest
// received first, then by id for a total order.
func fefoLess(a, b Batch) bool {
	switch {
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if !a.ExpiryDate.Equal(*b.ExpiryDate) {
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	case a.ExpiryDate != nil:
		return true
	case b.ExpiryDate != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
