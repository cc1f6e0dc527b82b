package fulfillment

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotline-erp/lotline-erp/internal/ledger"
	"github.com/lotline-erp/lotline-erp/internal/shared"
)

type memoryFulfillRepo struct {
	batches   map[int64]ledger.Batch
	movements []ledger.Movement
	outbounds map[int64]Outbound
	lines     []OutboundLine
	returns   []ReturnRecord
	nextID    int64
	clock     time.Time
}

func newMemoryFulfillRepo() *memoryFulfillRepo {
	return &memoryFulfillRepo{
		batches:   map[int64]ledger.Batch{},
		outbounds: map[int64]Outbound{},
		nextID:    1,
		clock:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memoryFulfillRepo) addBatch(b ledger.Batch) {
	b.ID = m.nextID
	m.nextID++
	m.batches[b.ID] = b
}

func (m *memoryFulfillRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memoryFulfillRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapBatches := map[int64]ledger.Batch{}
	for id, b := range m.batches {
		snapBatches[id] = b
	}
	snapMovements := append([]ledger.Movement{}, m.movements...)
	snapOutbounds := map[int64]Outbound{}
	for id, o := range m.outbounds {
		snapOutbounds[id] = o
	}
	snapLines := append([]OutboundLine{}, m.lines...)
	snapReturns := append([]ReturnRecord{}, m.returns...)
	snapNext := m.nextID

	if err := fn(ctx, &memoryFulfillTx{repo: m}); err != nil {
		m.batches = snapBatches
		m.movements = snapMovements
		m.outbounds = snapOutbounds
		m.lines = snapLines
		m.returns = snapReturns
		m.nextID = snapNext
		return err
	}
	return nil
}

func (m *memoryFulfillRepo) GetOutbound(_ context.Context, outboundID int64) (Outbound, error) {
	outbound, ok := m.outbounds[outboundID]
	if !ok {
		return Outbound{}, ErrNotFound
	}
	for _, line := range m.lines {
		if line.OutboundID == outboundID {
			line.ReturnedQty = m.returnedFor(line.ID)
			outbound.Lines = append(outbound.Lines, line)
		}
	}
	return outbound, nil
}

func (m *memoryFulfillRepo) ListReturns(_ context.Context, outboundID int64) ([]ReturnRecord, error) {
	out := []ReturnRecord{}
	for _, rec := range m.returns {
		if rec.OutboundID == outboundID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryFulfillRepo) returnedFor(lineID int64) int64 {
	var total int64
	for _, rec := range m.returns {
		if rec.OutboundLineID == lineID {
			total += rec.Quantity
		}
	}
	return total
}

type memoryFulfillTx struct {
	repo *memoryFulfillRepo
}

func (t *memoryFulfillTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{repo: t.repo}
}

func (t *memoryFulfillTx) InsertOutbound(_ context.Context, outbound Outbound) (int64, error) {
	outbound.ID = t.repo.nextID
	t.repo.nextID++
	outbound.CreatedAt = t.repo.tick()
	t.repo.outbounds[outbound.ID] = outbound
	return outbound.ID, nil
}

func (t *memoryFulfillTx) InsertOutboundLine(_ context.Context, line OutboundLine) (OutboundLine, error) {
	line.ID = t.repo.nextID
	t.repo.nextID++
	line.OutboundAt = t.repo.outbounds[line.OutboundID].CreatedAt
	t.repo.lines = append(t.repo.lines, line)
	return line, nil
}

func (t *memoryFulfillTx) ListOutboundLinesForUpdate(_ context.Context, productID, batchID, outboundID int64) ([]OutboundLine, error) {
	lines := []OutboundLine{}
	for _, line := range t.repo.lines {
		if line.ProductID != productID || line.BatchID != batchID {
			continue
		}
		if outboundID != 0 && line.OutboundID != outboundID {
			continue
		}
		line.ReturnedQty = t.repo.returnedFor(line.ID)
		lines = append(lines, line)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].OutboundAt.Equal(lines[j].OutboundAt) {
			return lines[i].OutboundAt.Before(lines[j].OutboundAt)
		}
		return lines[i].ID < lines[j].ID
	})
	return lines, nil
}

func (t *memoryFulfillTx) InsertReturn(_ context.Context, rec ReturnRecord) (ReturnRecord, error) {
	rec.ID = t.repo.nextID
	t.repo.nextID++
	rec.CreatedAt = t.repo.tick()
	t.repo.returns = append(t.repo.returns, rec)
	return rec, nil
}

type memoryLedgerTx struct {
	repo *memoryFulfillRepo
}

func (t *memoryLedgerTx) InsertBatch(_ context.Context, batch ledger.Batch) (int64, error) {
	batch.ID = t.repo.nextID
	t.repo.nextID++
	t.repo.batches[batch.ID] = batch
	return batch.ID, nil
}

func (t *memoryLedgerTx) GetBatchForUpdate(_ context.Context, batchID int64) (ledger.Batch, error) {
	batch, ok := t.repo.batches[batchID]
	if !ok {
		return ledger.Batch{}, ledger.ErrBatchNotFound
	}
	return batch, nil
}

func (t *memoryLedgerTx) ListBatchesForUpdate(_ context.Context, productID int64) ([]ledger.Batch, error) {
	out := []ledger.Batch{}
	for _, b := range t.repo.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryLedgerTx) UpdateBatchQuantity(_ context.Context, batchID, quantity int64) error {
	batch, ok := t.repo.batches[batchID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	batch.Quantity = quantity
	t.repo.batches[batchID] = batch
	return nil
}

func (t *memoryLedgerTx) InsertMovement(_ context.Context, movement ledger.Movement) error {
	t.repo.movements = append(t.repo.movements, movement)
	return nil
}

type fakeIdempotency struct {
	keys map[string]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]bool{}}
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(t time.Time) *time.Time { return &t }

func seedTwoBatches(repo *memoryFulfillRepo) (early, late ledger.Batch) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.addBatch(ledger.Batch{ProductID: 1, BatchNo: "EARLY", Quantity: 5,
		ExpiryDate: datePtr(now.AddDate(0, 1, 0)), CreatedAt: now})
	repo.addBatch(ledger.Batch{ProductID: 1, BatchNo: "LATE", Quantity: 10,
		ExpiryDate: datePtr(now.AddDate(0, 3, 0)), CreatedAt: now.Add(time.Hour)})
	return repo.batches[1], repo.batches[2]
}

func TestOutboundFollowsExpiryOrder(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, late := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)

	result, err := svc.Outbound(context.Background(), OutboundRequest{
		Reference: "ship-1",
		Items:     []RequestItem{{ProductID: 1, Quantity: 8}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Len(t, result.Succeeded, 2)

	// Earliest expiry drains first.
	require.Equal(t, early.ID, result.Succeeded[0].BatchID)
	require.Equal(t, int64(5), result.Succeeded[0].Quantity)
	require.Equal(t, late.ID, result.Succeeded[1].BatchID)
	require.Equal(t, int64(3), result.Succeeded[1].Quantity)

	require.Equal(t, int64(0), repo.batches[early.ID].Quantity)
	require.Equal(t, int64(7), repo.batches[late.ID].Quantity)

	require.Len(t, repo.movements, 2)
	require.Equal(t, ledger.MovementTypeOut, repo.movements[0].Type)
	require.Equal(t, int64(-5), repo.movements[0].QtyChange)
}

func TestOutboundShortfallRejectsWholeCall(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, late := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)

	_, err := svc.Outbound(context.Background(), OutboundRequest{
		Reference: "ship-1",
		Items: []RequestItem{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 1},
		},
	})
	var rejected *OutboundRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Failed, 1)
	require.Equal(t, int64(2), rejected.Failed[0].ProductID)
	require.Equal(t, int64(1), rejected.Failed[0].Requested)
	require.Equal(t, int64(0), rejected.Failed[0].Available)

	// Nothing committed, including the product that could have shipped.
	require.Equal(t, int64(5), repo.batches[early.ID].Quantity)
	require.Equal(t, int64(10), repo.batches[late.ID].Quantity)
	require.Empty(t, repo.outbounds)
	require.Empty(t, repo.movements)
}

func TestOutboundPartialCommitsSucceeding(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, _ := seedTwoBatches(repo)
	idem := newFakeIdempotency()
	svc := NewService(testLogger(), repo, idem, nil)

	result, err := svc.Outbound(context.Background(), OutboundRequest{
		Reference:    "ship-1",
		AllowPartial: true,
		Items: []RequestItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, early.ID, result.Succeeded[0].BatchID)
	require.Len(t, result.Failed, 1)
	require.Equal(t, int64(2), result.Failed[0].ProductID)

	require.Equal(t, int64(3), repo.batches[early.ID].Quantity)
	require.Len(t, repo.outbounds, 1)

	// Failed items stay retryable under the same reference.
	require.False(t, idem.keys[outboundKey("ship-1", 2)])
	require.True(t, idem.keys[outboundKey("ship-1", 1)])
}

func TestOutboundRetrySameReferenceSkipped(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, late := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	_, err := svc.Outbound(ctx, OutboundRequest{
		Reference: "ship-1",
		Items:     []RequestItem{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)

	result, err := svc.Outbound(ctx, OutboundRequest{
		Reference: "ship-1",
		Items:     []RequestItem{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "already processed for this reference", result.Failed[0].Reason)

	// Only the first call decremented.
	require.Equal(t, int64(3), repo.batches[early.ID].Quantity)
	require.Equal(t, int64(10), repo.batches[late.ID].Quantity)
}

func TestReturnDistributesOldestOutboundFirst(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, late := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	first, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-1", Items: []RequestItem{{ProductID: 1, Quantity: 4}}})
	require.NoError(t, err)
	second, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-2", Items: []RequestItem{{ProductID: 1, Quantity: 3}}})
	require.NoError(t, err)

	// The early batch shipped in both outbounds: 4 units in the first, the
	// last remaining unit in the second.
	result, err := svc.Return(ctx, ReturnRequest{
		Reference: "ret-1",
		Items:     []ReturnItem{{ProductID: 1, BatchID: early.ID, Quantity: 5, RefundUnitPrice: dec("2.50")}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)

	// The oldest outbound absorbs the return first.
	require.Len(t, result.Succeeded, 2)
	require.Equal(t, first.OutboundID, result.Succeeded[0].OutboundID)
	require.Equal(t, int64(4), result.Succeeded[0].Quantity)
	require.Equal(t, "10", result.Succeeded[0].RefundAmount.String())
	require.Equal(t, second.OutboundID, result.Succeeded[1].OutboundID)
	require.Equal(t, int64(1), result.Succeeded[1].Quantity)
	require.Equal(t, "2.5", result.Succeeded[1].RefundAmount.String())

	// Every returned unit flowed back into the batch it came from.
	require.Equal(t, int64(5), repo.batches[early.ID].Quantity)
	require.Equal(t, int64(8), repo.batches[late.ID].Quantity)
}

func TestReturnCreditsNamedBatch(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, late := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	_, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-1", Items: []RequestItem{{ProductID: 1, Quantity: 5}}})
	require.NoError(t, err)
	second, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-2", Items: []RequestItem{{ProductID: 1, Quantity: 3}}})
	require.NoError(t, err)

	// The first shipment drained the early batch, the second shipped from
	// the late one. Returning the late-batch units must credit that batch,
	// never the older shipment's.
	result, err := svc.Return(ctx, ReturnRequest{
		Reference: "ret-1",
		Items:     []ReturnItem{{ProductID: 1, BatchID: late.ID, Quantity: 3, RefundUnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, late.ID, result.Succeeded[0].BatchID)
	require.Equal(t, second.OutboundID, result.Succeeded[0].OutboundID)

	require.Equal(t, int64(0), repo.batches[early.ID].Quantity)
	require.Equal(t, int64(10), repo.batches[late.ID].Quantity)

	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, ledger.MovementTypeReturn, last.Type)
	require.Equal(t, late.ID, last.BatchID)
}

func TestReturnScopedToOneOutbound(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, _ := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	_, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-1", Items: []RequestItem{{ProductID: 1, Quantity: 4}}})
	require.NoError(t, err)
	second, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-2", Items: []RequestItem{{ProductID: 1, Quantity: 1}}})
	require.NoError(t, err)

	// Scoping to the second shipment caps the returnable quantity at what
	// that shipment carried, even though the first shipped more.
	result, err := svc.Return(ctx, ReturnRequest{
		Reference:  "ret-1",
		OutboundID: second.OutboundID,
		Items:      []ReturnItem{{ProductID: 1, BatchID: early.ID, Quantity: 2, RefundUnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Equal(t, int64(1), result.Failed[0].Available)

	result, err = svc.Return(ctx, ReturnRequest{
		Reference:  "ret-2",
		OutboundID: second.OutboundID,
		Items:      []ReturnItem{{ProductID: 1, BatchID: early.ID, Quantity: 1, RefundUnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, second.OutboundID, result.Succeeded[0].OutboundID)
}

func TestReturnExceedingReturnableFails(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, _ := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	_, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-1", Items: []RequestItem{{ProductID: 1, Quantity: 4}}})
	require.NoError(t, err)

	_, err = svc.Return(ctx, ReturnRequest{
		Reference: "ret-1",
		Items:     []ReturnItem{{ProductID: 1, BatchID: early.ID, Quantity: 3, RefundUnitPrice: dec("1")}},
	})
	require.NoError(t, err)

	result, err := svc.Return(ctx, ReturnRequest{
		Reference: "ret-2",
		Items:     []ReturnItem{{ProductID: 1, BatchID: early.ID, Quantity: 2, RefundUnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Equal(t, early.ID, result.Failed[0].BatchID)
	require.Equal(t, int64(2), result.Failed[0].Requested)
	require.Equal(t, int64(1), result.Failed[0].Available)
	require.Equal(t, "exceeds returnable quantity", result.Failed[0].Reason)
}

func TestOutboundThenFullReturnRestoresStock(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, late := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	_, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-1", Items: []RequestItem{{ProductID: 1, Quantity: 8}}})
	require.NoError(t, err)

	_, err = svc.Return(ctx, ReturnRequest{
		Reference: "ret-1",
		Items: []ReturnItem{
			{ProductID: 1, BatchID: early.ID, Quantity: 5, RefundUnitPrice: dec("1")},
			{ProductID: 1, BatchID: late.ID, Quantity: 3, RefundUnitPrice: dec("1")},
		},
	})
	require.NoError(t, err)

	require.Equal(t, int64(5), repo.batches[early.ID].Quantity)
	require.Equal(t, int64(10), repo.batches[late.ID].Quantity)

	// Every movement is mirrored: out then back in.
	var sum int64
	for _, mv := range repo.movements {
		sum += mv.QtyChange
	}
	require.Zero(t, sum)
}

func TestGetOutboundShowsReturnedQuantities(t *testing.T) {
	repo := newMemoryFulfillRepo()
	early, _ := seedTwoBatches(repo)
	svc := NewService(testLogger(), repo, newFakeIdempotency(), nil)
	ctx := context.Background()

	created, err := svc.Outbound(ctx, OutboundRequest{Reference: "ship-1", Items: []RequestItem{{ProductID: 1, Quantity: 4}}})
	require.NoError(t, err)

	_, err = svc.Return(ctx, ReturnRequest{
		Reference: "ret-1",
		Items:     []ReturnItem{{ProductID: 1, BatchID: early.ID, Quantity: 3, RefundUnitPrice: dec("1")}},
	})
	require.NoError(t, err)

	outbound, err := svc.GetOutbound(ctx, created.OutboundID)
	require.NoError(t, err)
	require.Len(t, outbound.Lines, 1)
	require.Equal(t, int64(3), outbound.Lines[0].ReturnedQty)

	records, err := svc.ListReturns(ctx, created.OutboundID)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
