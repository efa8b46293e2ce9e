package store

import (
	"context"
	"database/sql"
	"fmt"

	"stock-reconciler/internal/models"
	"stock-reconciler/internal/reconcile"
)

// GetOrder retrieves an order snapshot: status, payment method, line items,
// and the full mutation record set. Returns reconcile.ErrOrderNotFound for
// unknown orders.
func (s *Store) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, reconcile.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	if err := s.db.SelectContext(ctx, &order.Mutations,
		"SELECT * FROM stock_mutations WHERE order_id = $1", orderID); err != nil {
		return nil, fmt.Errorf("failed to load stock mutations: %w", err)
	}

	if err := s.db.SelectContext(ctx, &order.MutationItems,
		"SELECT * FROM stock_mutation_items WHERE order_id = $1 ORDER BY applied_at", orderID); err != nil {
		return nil, fmt.Errorf("failed to load stock mutation items: %w", err)
	}

	return &order, nil
}

// UpdateStatus updates the order status
func (s *Store) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %d: %w", orderID, reconcile.ErrOrderNotFound)
	}
	return nil
}

// AppendNote appends an audit or customer note to an order
func (s *Store) AppendNote(ctx context.Context, orderID int64, note string, customerVisible bool) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO order_notes (order_id, note, customer_visible) VALUES ($1, $2, $3)",
		orderID, note, customerVisible)
	return err
}

// AppendMutation appends an order-level mutation record. The unique constraint
// on (order_id, kind) makes a concurrent duplicate a no-op, not an error.
func (s *Store) AppendMutation(ctx context.Context, orderID int64, kind string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO stock_mutations (order_id, kind) VALUES ($1, $2) ON CONFLICT (order_id, kind) DO NOTHING",
		orderID, kind)
	return err
}

// AppendMutationItem appends a per-item mutation record
func (s *Store) AppendMutationItem(ctx context.Context, item *models.StockMutationItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_mutation_items (order_id, product_id, kind, quantity, new_qty)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (order_id, product_id, kind) DO NOTHING`,
		item.OrderID, item.ProductID, item.Kind, item.Quantity, item.NewQty)
	return err
}

// GetNotes retrieves the notes appended to an order, newest first
func (s *Store) GetNotes(ctx context.Context, orderID int64) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := s.db.SelectContext(ctx, &notes,
		"SELECT * FROM order_notes WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return notes, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
