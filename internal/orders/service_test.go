package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotline-erp/lotline-erp/internal/draft"
)

type memoryOrdersRepo struct {
	orders       map[int64]Order
	adjustments  []Adjustment
	numbers      map[string]bool
	nextID       int64
	failOrders   int // fail InsertOrder after this many inserts when > 0
	dupOnAttempt int // the Nth InsertOrder attempt reports a number collision
	attempts     int
}

func newMemoryOrdersRepo() *memoryOrdersRepo {
	return &memoryOrdersRepo{
		orders:  map[int64]Order{},
		numbers: map[string]bool{},
		nextID:  1,
	}
}

// errTxAborted mimics Postgres poisoning a transaction after a raw statement
// failure. A duplicate order number does not poison: the real repository
// contains that insert in a savepoint, so the transaction stays usable.
var errTxAborted = errors.New("current transaction is aborted")

type memoryOrdersTx struct {
	repo     *memoryOrdersRepo
	inserted int
	aborted  bool
}

func (m *memoryOrdersRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshotOrders := map[int64]Order{}
	for id, o := range m.orders {
		snapshotOrders[id] = o
	}
	snapshotNumbers := map[string]bool{}
	for n := range m.numbers {
		snapshotNumbers[n] = true
	}
	snapshotAdjustments := append([]Adjustment{}, m.adjustments...)
	snapshotNext := m.nextID

	if err := fn(ctx, &memoryOrdersTx{repo: m}); err != nil {
		m.orders = snapshotOrders
		m.numbers = snapshotNumbers
		m.adjustments = snapshotAdjustments
		m.nextID = snapshotNext
		return err
	}
	return nil
}

func (m *memoryOrdersRepo) GetOrder(_ context.Context, orderID int64) (Order, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (m *memoryOrdersRepo) ListOrders(_ context.Context, _ ListFilters) ([]Order, int, error) {
	out := []Order{}
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (m *memoryOrdersRepo) ListAdjustments(_ context.Context, orderID int64) ([]Adjustment, error) {
	out := []Adjustment{}
	for _, a := range m.adjustments {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memoryOrdersTx) InsertOrder(_ context.Context, order Order) (Order, error) {
	if t.aborted {
		return Order{}, errTxAborted
	}
	t.repo.attempts++
	if t.repo.dupOnAttempt == t.repo.attempts {
		return Order{}, ErrDuplicateNumber
	}
	t.inserted++
	if t.repo.failOrders > 0 && t.inserted > t.repo.failOrders {
		t.aborted = true
		return Order{}, errors.New("insert failed")
	}
	if t.repo.numbers[order.OrderNumber] {
		return Order{}, ErrDuplicateNumber
	}
	order.ID = t.repo.nextID
	t.repo.nextID++
	t.repo.numbers[order.OrderNumber] = true
	t.repo.orders[order.ID] = order
	return order, nil
}

func (t *memoryOrdersTx) InsertOrderItem(_ context.Context, item OrderItem) (OrderItem, error) {
	if t.aborted {
		return OrderItem{}, errTxAborted
	}
	item.ID = t.repo.nextID
	t.repo.nextID++
	order := t.repo.orders[item.OrderID]
	order.Items = append(order.Items, item)
	t.repo.orders[item.OrderID] = order
	return item, nil
}

func (t *memoryOrdersTx) GetOrderForUpdate(_ context.Context, orderID int64) (Order, error) {
	if t.aborted {
		return Order{}, errTxAborted
	}
	order, ok := t.repo.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (t *memoryOrdersTx) UpdateOrderStatus(_ context.Context, orderID int64, status Status, reason *ReasonCode, note string) error {
	order, ok := t.repo.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	order.RejectionReason = reason
	order.RejectionNote = note
	t.repo.orders[orderID] = order
	return nil
}

func (t *memoryOrdersTx) InsertAdjustment(_ context.Context, adj Adjustment) (Adjustment, error) {
	adj.ID = t.repo.nextID
	t.repo.nextID++
	t.repo.adjustments = append(t.repo.adjustments, adj)
	return adj, nil
}

type fakeDrafts struct {
	view    draft.View
	getErr  error
	cleared []string
}

func (f *fakeDrafts) Get(_ context.Context, sessionID string) (draft.View, error) {
	if f.getErr != nil {
		return draft.View{}, f.getErr
	}
	view := f.view
	view.SessionID = sessionID
	return view, nil
}

func (f *fakeDrafts) Clear(_ context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return nil
}

type fakeNotifier struct {
	calls [][2]int64
	err   error
}

func (f *fakeNotifier) OrderCreated(_ context.Context, orderID, supplierID int64) error {
	f.calls = append(f.calls, [2]int64{orderID, supplierID})
	return f.err
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

func twoSupplierDraft() draft.View {
	items := []draft.Item{
		{ProductID: 1, Quantity: 2, UnitPrice: dec("10"), SupplierID: 9, ProductName: "Gauze"},
		{ProductID: 2, Quantity: 1, UnitPrice: dec("5"), SupplierID: 4, ProductName: "Syringe"},
		{ProductID: 3, Quantity: 3, UnitPrice: dec("2"), SupplierID: 9, ProductName: "Gloves"},
	}
	return draft.View{
		Items: items,
		GroupedBySupplier: []draft.SupplierGroup{
			{SupplierID: 9, Items: []draft.Item{items[0], items[2]}, Subtotal: dec("26")},
			{SupplierID: 4, Items: []draft.Item{items[1]}, Subtotal: dec("5")},
		},
		TotalAmount: dec("31"),
	}
}

func TestFinalizeEmptyDraft(t *testing.T) {
	repo := newMemoryOrdersRepo()
	svc := NewService(testLogger(), repo, &fakeDrafts{}, &fakeNotifier{}, nil)

	_, err := svc.Finalize(context.Background(), "sess-1", nil)
	require.ErrorIs(t, err, ErrEmptyDraft)
	require.Empty(t, repo.orders)
}

func TestFinalizeCreatesOrderPerSupplierGroup(t *testing.T) {
	repo := newMemoryOrdersRepo()
	drafts := &fakeDrafts{view: twoSupplierDraft()}
	notifier := &fakeNotifier{}
	svc := NewService(testLogger(), repo, drafts, notifier, nil)

	created, err := svc.Finalize(context.Background(), "sess-1", map[int64]string{9: "rush please"})
	require.NoError(t, err)
	require.Len(t, created, 2)

	numberPattern := regexp.MustCompile(`^RO-\d{8}-\d{6}$`)
	first, second := created[0], created[1]
	require.Equal(t, int64(9), first.SupplierID)
	require.Equal(t, StatusPending, first.Status)
	require.Equal(t, "rush please", first.Memo)
	require.Regexp(t, numberPattern, first.OrderNumber)
	require.Len(t, first.Items, 2)
	require.Equal(t, "26", first.TotalAmount.String())
	require.Equal(t, "20", first.Items[0].LineTotal.String())

	require.Equal(t, int64(4), second.SupplierID)
	require.Empty(t, second.Memo)
	require.Regexp(t, numberPattern, second.OrderNumber)
	require.NotEqual(t, first.OrderNumber, second.OrderNumber)

	require.Equal(t, []string{"sess-1"}, drafts.cleared)
	require.Len(t, notifier.calls, 2)
}

func TestFinalizeAtomicAcrossGroups(t *testing.T) {
	repo := newMemoryOrdersRepo()
	repo.failOrders = 1
	drafts := &fakeDrafts{view: twoSupplierDraft()}
	svc := NewService(testLogger(), repo, drafts, &fakeNotifier{}, nil)

	_, err := svc.Finalize(context.Background(), "sess-1", nil)
	require.Error(t, err)
	require.Empty(t, repo.orders, "no order may survive a failed finalize")
	require.Empty(t, drafts.cleared, "draft must stay intact after a failed finalize")
}

func TestFinalizeRetriesNumberCollision(t *testing.T) {
	repo := newMemoryOrdersRepo()
	repo.dupOnAttempt = 1
	drafts := &fakeDrafts{view: twoSupplierDraft()}
	svc := NewService(testLogger(), repo, drafts, &fakeNotifier{}, nil)

	created, err := svc.Finalize(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
}

func TestFinalizeRetriesCollisionMidTransaction(t *testing.T) {
	repo := newMemoryOrdersRepo()
	// The second supplier group collides after the first group's rows are
	// already written in the same transaction. The retry must still land
	// and the earlier rows must survive.
	repo.dupOnAttempt = 2
	drafts := &fakeDrafts{view: twoSupplierDraft()}
	svc := NewService(testLogger(), repo, drafts, &fakeNotifier{}, nil)

	created, err := svc.Finalize(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.NotEqual(t, created[0].OrderNumber, created[1].OrderNumber)
	require.Len(t, repo.orders, 2)
	for _, order := range created {
		require.NotEmpty(t, repo.orders[order.ID].Items)
	}
}

func TestFinalizeNotifierFailureDoesNotFail(t *testing.T) {
	repo := newMemoryOrdersRepo()
	drafts := &fakeDrafts{view: twoSupplierDraft()}
	notifier := &fakeNotifier{err: errors.New("broker down")}
	svc := NewService(testLogger(), repo, drafts, notifier, nil)

	created, err := svc.Finalize(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
}

func seedOrder(t *testing.T, repo *memoryOrdersRepo, status Status) Order {
	t.Helper()
	order := Order{
		ID:          repo.nextID,
		OrderNumber: "RO-20250601-000001",
		SupplierID:  9,
		Status:      status,
		TotalAmount: dec("26"),
		Items: []OrderItem{
			{ID: repo.nextID + 1, OrderID: repo.nextID, ProductID: 1, Quantity: 2, UnitPrice: dec("10"), LineTotal: dec("20")},
		},
	}
	repo.orders[order.ID] = order
	repo.nextID += 2
	return order
}

func TestStatusMachine(t *testing.T) {
	repo := newMemoryOrdersRepo()
	svc := NewService(testLogger(), repo, &fakeDrafts{}, &fakeNotifier{}, nil)
	ctx := context.Background()
	order := seedOrder(t, repo, StatusPending)

	confirmed, err := svc.Confirm(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)

	// Rejection is only reachable from pending.
	_, err = svc.Reject(ctx, order.ID, ReasonStockout, "none left")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, StatusConfirmed, transition.From)
	require.Equal(t, StatusRejected, transition.To)

	completed, err := svc.Complete(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	_, err = svc.Confirm(ctx, order.ID)
	require.ErrorAs(t, err, &transition)
}

func TestRejectFromPending(t *testing.T) {
	repo := newMemoryOrdersRepo()
	svc := NewService(testLogger(), repo, &fakeDrafts{}, &fakeNotifier{}, nil)
	ctx := context.Background()
	order := seedOrder(t, repo, StatusPending)

	rejected, err := svc.Reject(ctx, order.ID, ReasonPriceChange, "quote expired")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, ReasonPriceChange, *rejected.RejectionReason)
	require.Equal(t, "quote expired", rejected.RejectionNote)

	// Rejected is terminal.
	_, err = svc.Confirm(ctx, order.ID)
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
}

func TestRejectUnknownReason(t *testing.T) {
	repo := newMemoryOrdersRepo()
	svc := NewService(testLogger(), repo, &fakeDrafts{}, &fakeNotifier{}, nil)
	order := seedOrder(t, repo, StatusPending)

	_, err := svc.Reject(context.Background(), order.ID, ReasonCode("vibes"), "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestAddAdjustmentRequiresConfirmedOrder(t *testing.T) {
	repo := newMemoryOrdersRepo()
	svc := NewService(testLogger(), repo, &fakeDrafts{}, &fakeNotifier{}, nil)
	ctx := context.Background()
	order := seedOrder(t, repo, StatusPending)
	itemID := order.Items[0].ID

	_, err := svc.AddAdjustment(ctx, order.ID, Adjustment{OrderItemID: itemID, QtyDelta: -1, Reason: ReasonStockout})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Confirm(ctx, order.ID)
	require.NoError(t, err)

	recorded, err := svc.AddAdjustment(ctx, order.ID, Adjustment{
		OrderItemID: itemID,
		QtyDelta:    -1,
		PriceDelta:  dec("0.50"),
		Reason:      ReasonStockout,
		Note:        "short shipped",
	})
	require.NoError(t, err)
	require.Equal(t, order.ID, recorded.OrderID)
	require.Equal(t, int64(-1), recorded.QtyDelta)

	// The snapshot stays frozen; only the delta is recorded.
	stored, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.Items[0].Quantity)

	adjustments, err := svc.ListAdjustments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
}

func TestAddAdjustmentForeignItemRejected(t *testing.T) {
	repo := newMemoryOrdersRepo()
	svc := NewService(testLogger(), repo, &fakeDrafts{}, &fakeNotifier{}, nil)
	ctx := context.Background()
	order := seedOrder(t, repo, StatusConfirmed)

	_, err := svc.AddAdjustment(ctx, order.ID, Adjustment{OrderItemID: 9999, QtyDelta: -1, Reason: ReasonOther})
	require.ErrorIs(t, err, ErrValidation)
}
