package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func expiry(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestAllocatePrefersEarliestExpiry(t *testing.T) {
	batches := []Batch{
		{ID: 2, BatchNo: "B", ExpiryDate: expiry("2025-03-01"), Quantity: 10},
		{ID: 1, BatchNo: "A", ExpiryDate: expiry("2025-01-01"), Quantity: 5},
	}

	plan := Allocate(8, batches)
	require.True(t, plan.FullyAllocated())
	require.Equal(t, []BatchAllocation{
		{BatchID: 1, BatchNo: "A", AllocatedQty: 5},
		{BatchID: 2, BatchNo: "B", AllocatedQty: 3},
	}, plan.Allocations)
}

func TestAllocateExactCoverage(t *testing.T) {
	batches := []Batch{
		{ID: 1, ExpiryDate: expiry("2025-01-01"), Quantity: 4},
		{ID: 2, ExpiryDate: expiry("2025-02-01"), Quantity: 6},
	}

	plan := Allocate(10, batches)
	require.Zero(t, plan.Shortfall)
	require.Equal(t, int64(10), plan.TotalAllocated())
}

func TestAllocateShortfall(t *testing.T) {
	batches := []Batch{
		{ID: 1, ExpiryDate: expiry("2025-01-01"), Quantity: 3},
		{ID: 2, Quantity: 2},
	}

	plan := Allocate(9, batches)
	require.Equal(t, int64(4), plan.Shortfall)
	require.Equal(t, int64(5), plan.TotalAllocated())
	require.False(t, plan.FullyAllocated())
}

func TestAllocateNilExpirySortsLast(t *testing.T) {
	batches := []Batch{
		{ID: 1, Quantity: 10},
		{ID: 2, ExpiryDate: expiry("2030-12-31"), Quantity: 10},
	}

	plan := Allocate(10, batches)
	require.Equal(t, int64(2), plan.Allocations[0].BatchID)
}

func TestAllocateSkipsEmptyBatches(t *testing.T) {
	batches := []Batch{
		{ID: 1, ExpiryDate: expiry("2025-01-01"), Quantity: 0},
		{ID: 2, ExpiryDate: expiry("2025-02-01"), Quantity: 5},
	}

	plan := Allocate(3, batches)
	require.Len(t, plan.Allocations, 1)
	require.Equal(t, int64(2), plan.Allocations[0].BatchID)
}

func TestAllocateTieBreakOnCreatedAtThenID(t *testing.T) {
	received := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	batches := []Batch{
		{ID: 3, ExpiryDate: expiry("2025-06-01"), Quantity: 5, CreatedAt: received.Add(time.Hour)},
		{ID: 2, ExpiryDate: expiry("2025-06-01"), Quantity: 5, CreatedAt: received},
		{ID: 1, ExpiryDate: expiry("2025-06-01"), Quantity: 5, CreatedAt: received.Add(time.Hour)},
	}

	plan := Allocate(15, batches)
	require.Equal(t, int64(2), plan.Allocations[0].BatchID)
	require.Equal(t, int64(1), plan.Allocations[1].BatchID)
	require.Equal(t, int64(3), plan.Allocations[2].BatchID)
}

func TestAllocateDeterministic(t *testing.T) {
	batches := []Batch{
		{ID: 5, ExpiryDate: expiry("2025-04-01"), Quantity: 7},
		{ID: 4, ExpiryDate: expiry("2025-04-01"), Quantity: 2},
		{ID: 9, Quantity: 4},
	}

	first := Allocate(11, batches)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, Allocate(11, batches))
	}
}

func TestAllocateZeroRequest(t *testing.T) {
	plan := Allocate(0, []Batch{{ID: 1, Quantity: 5}})
	require.Empty(t, plan.Allocations)
	require.Zero(t, plan.Shortfall)
}
