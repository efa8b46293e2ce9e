package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeStockAdjusted      = "STOCK_ADJUSTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is delivered when the order pipeline creates an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}

// OrderStatusChangedEvent is delivered on every order status transition.
// From and To carry the wire-form status strings.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// StockAdjustedEvent is published after each applied per-item ledger mutation
// for downstream messaging (stock-restored notices, customer messages)
type StockAdjustedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	NewQty    int    `json:"new_qty"`
	DeltaQty  int    `json:"delta_qty"`
	Kind      string `json:"kind"`
}
