package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-reconciler/internal/models"
	"stock-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockLedger is the stock-keeping ledger the engine debits and credits.
// Per-product adjustments are atomic; cross-item atomicity is the engine's
// problem (see applyDebit).
type StockLedger interface {
	IsManaged(ctx context.Context, productID int64) (bool, error)
	Decrease(ctx context.Context, productID int64, qty int) (int, error)
	Increase(ctx context.Context, productID int64, qty int) (int, error)
}

// OrderRepository is the order pipeline's data store. The engine reads order
// snapshots and appends notes and mutation records; implementations must
// return ErrOrderNotFound for unknown orders.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status string) error
	AppendNote(ctx context.Context, orderID int64, note string, customerVisible bool) error
	AppendMutation(ctx context.Context, orderID int64, kind string) error
	AppendMutationItem(ctx context.Context, item *models.StockMutationItem) error
}

// NotificationSink receives post-mutation events for downstream messaging.
// Fire-and-forget: implementations log failures instead of propagating them.
type NotificationSink interface {
	Notify(ctx context.Context, orderID, productID int64, newQty, deltaQty int, kind string)
}

// TransitionPublisher emits the StatusChanged event a reroute produces, so the
// transition re-enters Handle through the event bus rather than recursively.
// May be nil when the order pipeline emits transitions itself.
type TransitionPublisher interface {
	PublishStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// QuantityFn overrides the debited quantity for a line item
type QuantityFn func(order *models.Order, item models.LineItem) int

// Engine is the reconciliation state machine. All Handle calls for the same
// order are serialized through a per-order lock so the idempotency checks
// against the mutation records are race-free; different orders proceed in
// parallel.
type Engine struct {
	ledger      StockLedger
	orders      OrderRepository
	sink        NotificationSink
	transitions TransitionPublisher

	gatedMethod  string
	stockManaged bool
	quantityFn   QuantityFn

	locks  *orderLocks
	logger *zap.Logger
}

// NewEngine creates a reconciliation engine. gatedMethod is the payment method
// this engine owns stock timing for; stockManaged is the master switch that
// disables all ledger mutations when false.
func NewEngine(
	ledger StockLedger,
	orders OrderRepository,
	sink NotificationSink,
	transitions TransitionPublisher,
	gatedMethod string,
	stockManaged bool,
) *Engine {
	return &Engine{
		ledger:       ledger,
		orders:       orders,
		sink:         sink,
		transitions:  transitions,
		gatedMethod:  gatedMethod,
		stockManaged: stockManaged,
		locks:        newOrderLocks(),
		logger:       util.GetLogger(),
	}
}

// SetQuantityFn installs a per-item quantity override applied on debit
func (e *Engine) SetQuantityFn(fn QuantityFn) {
	e.quantityFn = fn
}

// Handle processes one lifecycle event end to end: classify, then apply the
// resulting action. Safe under redelivery; the caller owns retry policy for
// returned errors (IsRetryable distinguishes transient from data errors).
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	ctx, span := util.StartSpan(ctx, "Engine.Handle")
	defer span.End()

	unlock := e.locks.Acquire(ev.OrderID)
	defer unlock()

	order, err := e.orders.GetOrder(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			e.logger.Warn("Event references unknown order",
				zap.Int64("order_id", ev.OrderID))
			return err
		}
		return fmt.Errorf("failed to load order %d: %w", ev.OrderID, err)
	}

	return e.apply(ctx, order, Classify(ev, order, e.gatedMethod))
}

// ApplyAction applies a pre-classified action under the per-order lock,
// against a fresh order snapshot. Entry point for adapters that classify
// upstream and for operator tooling.
func (e *Engine) ApplyAction(ctx context.Context, action Action) error {
	ctx, span := util.StartSpan(ctx, "Engine.ApplyAction")
	defer span.End()

	unlock := e.locks.Acquire(action.OrderID)
	defer unlock()

	order, err := e.orders.GetOrder(ctx, action.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return err
		}
		return fmt.Errorf("failed to load order %d: %w", action.OrderID, err)
	}

	return e.apply(ctx, order, action)
}

func (e *Engine) apply(ctx context.Context, order *models.Order, action Action) error {
	switch action.Kind {
	case ActionDebit:
		return e.applyDebit(ctx, order)

	case ActionCredit:
		return e.applyCredit(ctx, order)

	case ActionAnnotate:
		if err := e.orders.AppendNote(ctx, order.ID, action.Note, true); err != nil {
			return fmt.Errorf("failed to append note to order %d: %w", order.ID, err)
		}
		return nil

	case ActionReroute:
		return e.reroute(ctx, order, action)
	}

	return nil
}

// applyDebit decreases stock for every managed line item, then seals the order
// with a Debited record. Per-item ledger calls are not atomic as a group: a
// failure mid-order leaves the already-applied items recorded as mutation
// items and no Debited record, so a redelivered event resumes with only the
// remaining items.
func (e *Engine) applyDebit(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "Engine.applyDebit")
	defer span.End()

	if order.HasMutation(models.MutationDebited) {
		e.logger.Info("Debit already applied, skipping",
			zap.Int64("order_id", order.ID))
		return nil
	}

	if !e.stockManaged {
		e.logger.Info("Stock management disabled, skipping debit",
			zap.Int64("order_id", order.ID))
		return nil
	}

	var applied []models.StockMutationItem
	for _, item := range order.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			continue
		}
		if order.ItemApplied(item.ProductID, models.MutationDebited) {
			util.ItemsSkippedTotal.WithLabelValues("already_applied").Inc()
			continue
		}

		managed, err := e.ledger.IsManaged(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to check product %d: %w", item.ProductID, err)
		}
		if !managed {
			// Unmanaged products are skipped silently, not errors
			util.ItemsSkippedTotal.WithLabelValues("unmanaged").Inc()
			continue
		}

		qty := item.Quantity
		if e.quantityFn != nil {
			qty = e.quantityFn(order, item)
		}

		newQty, err := e.decreaseTimed(ctx, item.ProductID, qty)
		if err != nil {
			return fmt.Errorf("failed to decrease stock for product %d: %w", item.ProductID, err)
		}

		rec := &models.StockMutationItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Kind:      models.MutationDebited,
			Quantity:  qty,
			NewQty:    newQty,
		}
		if err := e.orders.AppendMutationItem(ctx, rec); err != nil {
			return fmt.Errorf("failed to record debit item for product %d: %w", item.ProductID, err)
		}
		applied = append(applied, *rec)
	}

	// An order with no managed items gets no record and no note; there is
	// nothing a credit would ever reverse
	if len(applied) == 0 && len(order.DebitedItems()) == 0 {
		e.logger.Info("No managed items to debit",
			zap.Int64("order_id", order.ID))
		return nil
	}

	if err := e.orders.AppendMutation(ctx, order.ID, models.MutationDebited); err != nil {
		return fmt.Errorf("failed to record debit for order %d: %w", order.ID, err)
	}

	note := fmt.Sprintf("Stock reduced for %d item(s); awaiting gateway payment confirmation.", len(applied))
	if err := e.orders.AppendNote(ctx, order.ID, note, false); err != nil {
		e.logger.Error("Failed to append debit note", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	for _, rec := range applied {
		e.sink.Notify(ctx, order.ID, rec.ProductID, rec.NewQty, -rec.Quantity, models.MutationDebited)
	}

	util.DebitsAppliedTotal.Inc()
	e.logger.Info("Stock debited",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(applied)))
	return nil
}

// applyCredit reverses a prior debit by replaying its item records: the same
// products and quantities the debit applied, regardless of what the catalog
// says now. A credit with no prior debit is a data error, never auto-corrected.
func (e *Engine) applyCredit(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "Engine.applyCredit")
	defer span.End()

	if !order.HasMutation(models.MutationDebited) {
		util.ReversalErrorsTotal.Inc()
		e.logger.Error("Credit requested without prior debit",
			zap.Int64("order_id", order.ID))
		return fmt.Errorf("order %d: %w", order.ID, ErrInvalidReversal)
	}

	if order.HasMutation(models.MutationCredited) {
		e.logger.Info("Credit already applied, skipping",
			zap.Int64("order_id", order.ID))
		return nil
	}

	if !e.stockManaged {
		e.logger.Info("Stock management disabled, skipping credit",
			zap.Int64("order_id", order.ID))
		return nil
	}

	var restored []models.StockMutationItem
	for _, debit := range order.DebitedItems() {
		if order.ItemApplied(debit.ProductID, models.MutationCredited) {
			util.ItemsSkippedTotal.WithLabelValues("already_applied").Inc()
			continue
		}

		newQty, err := e.increaseTimed(ctx, debit.ProductID, debit.Quantity)
		if err != nil {
			return fmt.Errorf("failed to increase stock for product %d: %w", debit.ProductID, err)
		}

		rec := &models.StockMutationItem{
			OrderID:   order.ID,
			ProductID: debit.ProductID,
			Kind:      models.MutationCredited,
			Quantity:  debit.Quantity,
			NewQty:    newQty,
		}
		if err := e.orders.AppendMutationItem(ctx, rec); err != nil {
			return fmt.Errorf("failed to record credit item for product %d: %w", debit.ProductID, err)
		}
		restored = append(restored, *rec)
	}

	if err := e.orders.AppendMutation(ctx, order.ID, models.MutationCredited); err != nil {
		return fmt.Errorf("failed to record credit for order %d: %w", order.ID, err)
	}

	for _, rec := range restored {
		note := fmt.Sprintf("Stock for product %d restored to %d.", rec.ProductID, rec.NewQty)
		if err := e.orders.AppendNote(ctx, order.ID, note, false); err != nil {
			e.logger.Error("Failed to append credit note", zap.Int64("order_id", order.ID), zap.Error(err))
		}
		e.sink.Notify(ctx, order.ID, rec.ProductID, rec.NewQty, rec.Quantity, models.MutationCredited)
	}

	util.CreditsAppliedTotal.Inc()
	e.logger.Info("Stock credited",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(restored)))
	return nil
}

// reroute moves a freshly created gated order to on-hold and emits the
// matching StatusChanged event; the debit happens when that event comes back
// through Handle.
func (e *Engine) reroute(ctx context.Context, order *models.Order, action Action) error {
	ctx, span := util.StartSpan(ctx, "Engine.reroute")
	defer span.End()

	if err := e.orders.UpdateStatus(ctx, order.ID, action.ToStatus); err != nil {
		return fmt.Errorf("failed to reroute order %d to %s: %w", order.ID, action.ToStatus, err)
	}

	util.ReroutesTotal.Inc()
	e.logger.Info("Order rerouted",
		zap.Int64("order_id", order.ID),
		zap.String("from", action.FromStatus),
		zap.String("to", action.ToStatus))

	if e.transitions == nil {
		return nil
	}

	ev := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		From:    action.FromStatus,
		To:      action.ToStatus,
	}
	if err := e.transitions.PublishStatusChanged(ctx, ev); err != nil {
		// At-least-once delivery: the pipeline's own transition feed covers us
		e.logger.Error("Failed to publish status change", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return nil
}

func (e *Engine) decreaseTimed(ctx context.Context, productID int64, qty int) (int, error) {
	start := time.Now()
	defer func() {
		util.LedgerOpLatency.WithLabelValues("decrease").Observe(time.Since(start).Seconds())
	}()
	return e.ledger.Decrease(ctx, productID, qty)
}

func (e *Engine) increaseTimed(ctx context.Context, productID int64, qty int) (int, error) {
	start := time.Now()
	defer func() {
		util.LedgerOpLatency.WithLabelValues("increase").Observe(time.Since(start).Seconds())
	}()
	return e.ledger.Increase(ctx, productID, qty)
}
