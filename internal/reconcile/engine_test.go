package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"stock-reconciler/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory StockLedger tracking call counts per product
type fakeLedger struct {
	mu        sync.Mutex
	managed   map[int64]bool
	stock     map[int64]int
	decreases map[int64]int
	increases map[int64]int
	failOn    int64 // product whose mutation fails, 0 for none
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		managed:   make(map[int64]bool),
		stock:     make(map[int64]int),
		decreases: make(map[int64]int),
		increases: make(map[int64]int),
	}
}

func (f *fakeLedger) IsManaged(_ context.Context, productID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.managed[productID], nil
}

func (f *fakeLedger) Decrease(_ context.Context, productID int64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == productID {
		return 0, fmt.Errorf("product %d: %w", productID, ErrLedgerUnavailable)
	}
	f.stock[productID] -= qty
	f.decreases[productID]++
	return f.stock[productID], nil
}

func (f *fakeLedger) Increase(_ context.Context, productID int64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == productID {
		return 0, fmt.Errorf("product %d: %w", productID, ErrLedgerUnavailable)
	}
	f.stock[productID] += qty
	f.increases[productID]++
	return f.stock[productID], nil
}

// fakeRepo is an in-memory OrderRepository
type fakeRepo struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
	notes  []models.OrderNote
}

func newFakeRepo(orders ...*models.Order) *fakeRepo {
	r := &fakeRepo{orders: make(map[int64]*models.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (f *fakeRepo) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	return o, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, orderID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID].Status = status
	return nil
}

func (f *fakeRepo) AppendNote(_ context.Context, orderID int64, note string, customerVisible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, models.OrderNote{OrderID: orderID, Note: note, CustomerVisible: customerVisible})
	return nil
}

func (f *fakeRepo) AppendMutation(_ context.Context, orderID int64, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	if o.HasMutation(kind) {
		return nil
	}
	o.Mutations = append(o.Mutations, models.StockMutation{OrderID: orderID, Kind: kind})
	return nil
}

func (f *fakeRepo) AppendMutationItem(_ context.Context, item *models.StockMutationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[item.OrderID]
	o.MutationItems = append(o.MutationItems, *item)
	return nil
}

func (f *fakeRepo) notesContaining(substr string) []models.OrderNote {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OrderNote
	for _, n := range f.notes {
		if strings.Contains(n.Note, substr) {
			out = append(out, n)
		}
	}
	return out
}

// fakeSink records notifications
type fakeSink struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSink) Notify(_ context.Context, orderID, productID int64, newQty, deltaQty int, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%d/%d/%d/%d/%s", orderID, productID, newQty, deltaQty, kind))
}

func testOrder(status string, items ...models.LineItem) *models.Order {
	return &models.Order{
		ID:            1,
		Status:        status,
		PaymentMethod: gated,
		Items:         items,
	}
}

func newTestEngine(ledger *fakeLedger, repo *fakeRepo, sink *fakeSink) *Engine {
	return NewEngine(ledger, repo, sink, nil, gated, true)
}

func debitEvent() Event {
	return Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusPending, To: models.OrderStatusOnHold}
}

func cancelEvent() Event {
	return Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusOnHold, To: models.OrderStatusCancelled}
}

func TestDebitReducesManagedItems(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.managed[20] = true
	ledger.stock[10] = 8
	ledger.stock[20] = 5

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3},
		models.LineItem{OrderID: 1, ProductID: 20, Quantity: 1},
	)
	repo := newFakeRepo(order)
	sink := &fakeSink{}
	engine := newTestEngine(ledger, repo, sink)

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	assert.Equal(t, 5, ledger.stock[10])
	assert.Equal(t, 4, ledger.stock[20])
	assert.True(t, order.HasMutation(models.MutationDebited))
	assert.Len(t, repo.notesContaining("Stock reduced"), 1)
	assert.Len(t, sink.calls, 2)
}

func TestDebitIsIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 8

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))
	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	assert.Equal(t, 1, ledger.decreases[10])
	assert.Equal(t, 5, ledger.stock[10])
	assert.Len(t, order.Mutations, 1)
}

func TestCreditRestoresDebitedQuantities(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.managed[20] = true
	ledger.stock[10] = 8
	ledger.stock[20] = 5

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3},
		models.LineItem{OrderID: 1, ProductID: 20, Quantity: 1},
	)
	repo := newFakeRepo(order)
	sink := &fakeSink{}
	engine := newTestEngine(ledger, repo, sink)

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))
	order.Status = models.OrderStatusCancelled
	require.NoError(t, engine.Handle(context.Background(), cancelEvent()))

	assert.Equal(t, 8, ledger.stock[10])
	assert.Equal(t, 5, ledger.stock[20])
	assert.True(t, order.HasMutation(models.MutationCredited))
	assert.Len(t, repo.notesContaining("restored to"), 2)
}

func TestCreditReplaysDebitSnapshotAfterCatalogChange(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 8

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	// Catalog turns stock management off after the debit; the credit still
	// restores the debited quantity
	ledger.managed[10] = false
	order.Status = models.OrderStatusCancelled
	require.NoError(t, engine.Handle(context.Background(), cancelEvent()))

	assert.Equal(t, 8, ledger.stock[10])
}

func TestSecondCreditIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 8

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))
	order.Status = models.OrderStatusCancelled
	require.NoError(t, engine.Handle(context.Background(), cancelEvent()))
	require.NoError(t, engine.Handle(context.Background(), cancelEvent()))

	assert.Equal(t, 1, ledger.increases[10])
	assert.Equal(t, 8, ledger.stock[10])
}

func TestCreditWithoutDebitFails(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 8

	order := testOrder(models.OrderStatusCancelled,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	err := engine.ApplyAction(context.Background(), Action{Kind: ActionCredit, OrderID: 1})

	assert.ErrorIs(t, err, ErrInvalidReversal)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, ledger.increases[10])
	assert.Zero(t, ledger.decreases[10])
}

func TestUnmanagedItemsSkipped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 8
	// product 30 exists but is not stock-managed

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 2},
		models.LineItem{OrderID: 1, ProductID: 30, Quantity: 4},
	)
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	assert.Equal(t, 1, ledger.decreases[10])
	assert.Zero(t, ledger.decreases[30])
	assert.True(t, order.HasMutation(models.MutationDebited))
}

func TestNoRecordWhenNothingIsManaged(t *testing.T) {
	ledger := newFakeLedger()
	// neither product is stock-managed

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 2},
		models.LineItem{OrderID: 1, ProductID: 20, Quantity: 1},
	)
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	assert.False(t, order.HasMutation(models.MutationDebited))
	assert.Empty(t, repo.notes)
}

func TestPartialFailureResumesRemainingItems(t *testing.T) {
	ledger := newFakeLedger()
	for _, id := range []int64{10, 20, 30} {
		ledger.managed[id] = true
		ledger.stock[id] = 10
	}
	ledger.failOn = 20

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 1},
		models.LineItem{OrderID: 1, ProductID: 20, Quantity: 2},
		models.LineItem{OrderID: 1, ProductID: 30, Quantity: 3},
	)
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	err := engine.Handle(context.Background(), debitEvent())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, order.HasMutation(models.MutationDebited))

	// Redelivery completes only the remaining items
	ledger.failOn = 0
	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	assert.Equal(t, 1, ledger.decreases[10])
	assert.Equal(t, 1, ledger.decreases[20])
	assert.Equal(t, 1, ledger.decreases[30])
	assert.True(t, order.HasMutation(models.MutationDebited))
}

func TestQuantityOverrideHook(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 10

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})
	engine.SetQuantityFn(func(_ *models.Order, item models.LineItem) int {
		return item.Quantity * 2
	})

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))
	assert.Equal(t, 4, ledger.stock[10])
}

func TestRerouteMovesGatedOrderToOnHold(t *testing.T) {
	ledger := newFakeLedger()
	order := testOrder(models.OrderStatusPending)
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	require.NoError(t, engine.Handle(context.Background(), Event{Kind: EventOrderCreated, OrderID: 1}))
	assert.Equal(t, models.OrderStatusOnHold, order.Status)
}

func TestAnnotateAppendsCustomerNote(t *testing.T) {
	ledger := newFakeLedger()
	order := testOrder(models.OrderStatusProcessing)
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	ev := Event{Kind: EventStatusChanged, OrderID: 1, From: models.OrderStatusOnHold, To: models.OrderStatusProcessing}
	require.NoError(t, engine.Handle(context.Background(), ev))

	notes := repo.notesContaining("Payment confirmed")
	require.Len(t, notes, 1)
	assert.True(t, notes[0].CustomerVisible)
	assert.Zero(t, ledger.decreases[10])
}

func TestMasterSwitchDisablesMutations(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 8

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := NewEngine(ledger, repo, &fakeSink{}, nil, gated, false)

	require.NoError(t, engine.Handle(context.Background(), debitEvent()))

	assert.Equal(t, 8, ledger.stock[10])
	assert.False(t, order.HasMutation(models.MutationDebited))
}

func TestUnknownOrderIsNonRetryable(t *testing.T) {
	engine := newTestEngine(newFakeLedger(), newFakeRepo(), &fakeSink{})

	err := engine.Handle(context.Background(), Event{Kind: EventOrderCreated, OrderID: 99})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.False(t, IsRetryable(err))
}

func TestConcurrentDebitDeliveriesApplyOnce(t *testing.T) {
	ledger := newFakeLedger()
	ledger.managed[10] = true
	ledger.stock[10] = 100

	order := testOrder(models.OrderStatusOnHold,
		models.LineItem{OrderID: 1, ProductID: 10, Quantity: 3})
	repo := newFakeRepo(order)
	engine := newTestEngine(ledger, repo, &fakeSink{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.Handle(context.Background(), debitEvent())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.decreases[10])
	assert.Equal(t, 97, ledger.stock[10])
}
