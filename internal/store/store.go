package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stock-reconciler/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetManagedProducts retrieves all products with stock management enabled
func (s *Store) GetManagedProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE manage_stock = TRUE ORDER BY id")
	return products, err
}

// IsManaged reports whether a product exists and has stock management enabled
func (s *Store) IsManaged(ctx context.Context, productID int64) (bool, error) {
	var managed bool
	err := s.db.GetContext(ctx, &managed,
		"SELECT manage_stock FROM products WHERE id = $1", productID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return managed, nil
}

// DecreaseStock atomically decrements a product's stock level and returns the
// new level. Atomic per product; the engine handles cross-item consistency.
func (s *Store) DecreaseStock(ctx context.Context, productID int64, qty int) (int, error) {
	var newQty int
	err := s.db.GetContext(ctx, &newQty,
		"UPDATE products SET stock_qty = stock_qty - $1, updated_at = NOW() WHERE id = $2 RETURNING stock_qty",
		qty, productID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product not found: %d", productID)
	}
	if err != nil {
		return 0, err
	}
	return newQty, nil
}

// IncreaseStock atomically increments a product's stock level and returns the
// new level
func (s *Store) IncreaseStock(ctx context.Context, productID int64, qty int) (int, error) {
	var newQty int
	err := s.db.GetContext(ctx, &newQty,
		"UPDATE products SET stock_qty = stock_qty + $1, updated_at = NOW() WHERE id = $2 RETURNING stock_qty",
		qty, productID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product not found: %d", productID)
	}
	if err != nil {
		return 0, err
	}
	return newQty, nil
}
