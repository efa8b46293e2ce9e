// Package notify delivers post-mutation stock notifications to downstream
// messaging. Delivery is fire-and-forget: a lost notification is logged and
// counted, never propagated into the reconciliation path.
package notify

import (
	"context"
	"fmt"
	"time"

	"stock-reconciler/internal/broker"
	"stock-reconciler/internal/models"
	"stock-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KafkaSink publishes StockAdjusted events to the notifications topic
type KafkaSink struct {
	producer *broker.Producer
	logger   *zap.Logger
}

// NewKafkaSink creates a Kafka-backed notification sink
func NewKafkaSink(producer *broker.Producer) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		logger:   util.NamedLogger("notify"),
	}
}

// Notify publishes one stock adjustment for downstream messaging
func (ks *KafkaSink) Notify(ctx context.Context, orderID, productID int64, newQty, deltaQty int, kind string) {
	event := &models.StockAdjustedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockAdjusted,
			Timestamp: time.Now(),
		},
		OrderID:   orderID,
		ProductID: productID,
		NewQty:    newQty,
		DeltaQty:  deltaQty,
		Kind:      kind,
	}

	key := fmt.Sprintf("order-%d", orderID)
	if err := ks.producer.PublishEvent(ctx, key, event); err != nil {
		util.NotificationsFailedTotal.Inc()
		ks.logger.Error("Failed to publish stock notification",
			zap.Int64("order_id", orderID),
			zap.Int64("product_id", productID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}
