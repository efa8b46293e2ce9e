package models

import "time"

// Order statuses in wire form (case-sensitive, as delivered by the order pipeline)
const (
	OrderStatusPending    = "pending"
	OrderStatusOnHold     = "on-hold"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Stock mutation kinds
const (
	MutationDebited  = "debited"
	MutationCredited = "credited"
)

// Product represents a catalog product with its managed-stock flag and current level
type Product struct {
	ID          int64     `db:"id" json:"id"`
	SKU         string    `db:"sku" json:"sku"`
	Name        string    `db:"name" json:"name"`
	ManageStock bool      `db:"manage_stock" json:"manage_stock"`
	StockQty    int       `db:"stock_qty" json:"stock_qty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Order is a read-only snapshot of an order owned by the external order pipeline.
// The reconciler reads status/payment method/items and appends notes and
// stock-mutation records; it never writes anything else.
type Order struct {
	ID            int64     `db:"id" json:"id"`
	Status        string    `db:"status" json:"status"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	Items         []LineItem          `json:"items"`
	Mutations     []StockMutation     `json:"mutations"`
	MutationItems []StockMutationItem `json:"mutation_items"`
}

// LineItem is one product/quantity pair on an order
type LineItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// StockMutation is the order-level idempotency ledger: at most one row per
// (order, kind), appended only after every item-level ledger call succeeded.
type StockMutation struct {
	OrderID   int64     `db:"order_id" json:"order_id"`
	Kind      string    `db:"kind" json:"kind"`
	AppliedAt time.Time `db:"applied_at" json:"applied_at"`
}

// StockMutationItem records one applied per-item ledger call. Retries skip items
// already recorded, and the debit-time rows are the snapshot a credit replays
// (same products, same quantities) regardless of later catalog changes.
type StockMutationItem struct {
	OrderID   int64     `db:"order_id" json:"order_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Kind      string    `db:"kind" json:"kind"`
	Quantity  int       `db:"quantity" json:"quantity"`
	NewQty    int       `db:"new_qty" json:"new_qty"`
	AppliedAt time.Time `db:"applied_at" json:"applied_at"`
}

// OrderNote is an audit/customer note appended to an order
type OrderNote struct {
	ID              int64     `db:"id" json:"id"`
	OrderID         int64     `db:"order_id" json:"order_id"`
	Note            string    `db:"note" json:"note"`
	CustomerVisible bool      `db:"customer_visible" json:"customer_visible"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// HasMutation reports whether a mutation of the given kind has been applied
func (o *Order) HasMutation(kind string) bool {
	for _, m := range o.Mutations {
		if m.Kind == kind {
			return true
		}
	}
	return false
}

// ItemApplied reports whether the per-item ledger call for (product, kind)
// already ran for this order
func (o *Order) ItemApplied(productID int64, kind string) bool {
	for _, mi := range o.MutationItems {
		if mi.ProductID == productID && mi.Kind == kind {
			return true
		}
	}
	return false
}

// DebitedItems returns the debit-time item records, the set a credit replays
func (o *Order) DebitedItems() []StockMutationItem {
	var items []StockMutationItem
	for _, mi := range o.MutationItems {
		if mi.Kind == MutationDebited {
			items = append(items, mi)
		}
	}
	return items
}

// ProcessedEvent for event-level dedup ahead of the semantic idempotency checks
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
