package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-reconciler/internal/broker"
	"stock-reconciler/internal/models"
	"stock-reconciler/internal/reconcile"
	"stock-reconciler/internal/redisclient"
	"stock-reconciler/internal/store"
	"stock-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const orderLockTTL = 30 * time.Second

// LifecycleWorker consumes order lifecycle events and drives the
// reconciliation engine. Commit policy implements at-least-once semantics:
// success and non-retryable failures commit, transient failures leave the
// message for redelivery.
type LifecycleWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	engine       *reconcile.Engine
	store        *store.Store
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewLifecycleWorker creates a new lifecycle worker
func NewLifecycleWorker(
	consumer *broker.Consumer,
	engine *reconcile.Engine,
	store *store.Store,
	redis *redisclient.Client,
) *LifecycleWorker {
	w := &LifecycleWorker{
		consumer: consumer,
		engine:   engine,
		store:    store,
		redis:    redis,
		logger:   util.NamedLogger("worker"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnStatusChanged(w.handleStatusChanged)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *LifecycleWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting lifecycle worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *LifecycleWorker) Stop() error {
	w.logger.Info("Stopping lifecycle worker")
	return w.consumer.Close()
}

func (w *LifecycleWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	util.EventsConsumedTotal.WithLabelValues(event.EventType).Inc()

	return w.process(ctx, event.BaseEvent, reconcile.Event{
		Kind:    reconcile.EventOrderCreated,
		OrderID: event.OrderID,
	})
}

func (w *LifecycleWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	util.EventsConsumedTotal.WithLabelValues(event.EventType).Inc()

	return w.process(ctx, event.BaseEvent, reconcile.Event{
		Kind:    reconcile.EventStatusChanged,
		OrderID: event.OrderID,
		From:    event.From,
		To:      event.To,
	})
}

// process runs one event through the engine under the cross-replica order
// lock. Event-level dedup is a cheap first filter; the engine's mutation
// records remain the real idempotency guarantee.
func (w *LifecycleWorker) process(ctx context.Context, base models.BaseEvent, ev reconcile.Event) error {
	processed, err := w.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	token := uuid.New().String()
	acquired, err := w.redis.AcquireOrderLock(ctx, ev.OrderID, token, orderLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		// Another replica holds the order; leave the message for redelivery
		return fmt.Errorf("order %d locked by another replica", ev.OrderID)
	}
	defer func() {
		if err := w.redis.ReleaseOrderLock(ctx, ev.OrderID, token); err != nil {
			w.logger.Error("Failed to release order lock",
				zap.Int64("order_id", ev.OrderID),
				zap.Error(err))
		}
	}()

	if err := w.engine.Handle(ctx, ev); err != nil {
		if reconcile.IsRetryable(err) {
			return err
		}

		// Data errors: redelivery cannot fix these, record and move on
		util.EventsDroppedTotal.WithLabelValues(dropReason(err)).Inc()
		w.logger.Error("Dropping event after non-retryable failure",
			zap.String("event_id", base.EventID),
			zap.Int64("order_id", ev.OrderID),
			zap.Error(err))
	}

	if err := w.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		w.logger.Error("Failed to mark event processed",
			zap.String("event_id", base.EventID),
			zap.Error(err))
	}
	return nil
}

func dropReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, reconcile.ErrInvalidReversal):
		return "invalid_reversal"
	case errors.Is(err, reconcile.ErrOrderNotFound):
		return "order_not_found"
	}
	return "other"
}
