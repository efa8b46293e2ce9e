// Package ledger implements the stock ledger on Postgres with a Redis mirror
// of stock levels for fast reads. The database is authoritative; the mirror is
// refreshed after every mutation and at startup.
package ledger

import (
	"context"
	"fmt"

	"stock-reconciler/internal/redisclient"
	"stock-reconciler/internal/store"
	"stock-reconciler/internal/util"

	"go.uber.org/zap"
)

type Ledger struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewLedger creates a new stock ledger
func NewLedger(store *store.Store, redis *redisclient.Client) *Ledger {
	return &Ledger{
		store:  store,
		redis:  redis,
		logger: util.NamedLogger("ledger"),
	}
}

// IsManaged reports whether a product is stock-managed. Unknown products count
// as unmanaged so the engine skips them.
func (l *Ledger) IsManaged(ctx context.Context, productID int64) (bool, error) {
	return l.store.IsManaged(ctx, productID)
}

// Decrease atomically decrements a product's stock and returns the new level
func (l *Ledger) Decrease(ctx context.Context, productID int64, qty int) (int, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Decrease")
	defer span.End()

	newQty, err := l.store.DecreaseStock(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	l.mirror(ctx, productID, newQty)
	return newQty, nil
}

// Increase atomically increments a product's stock and returns the new level
func (l *Ledger) Increase(ctx context.Context, productID int64, qty int) (int, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Increase")
	defer span.End()

	newQty, err := l.store.IncreaseStock(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	l.mirror(ctx, productID, newQty)
	return newQty, nil
}

// StockLevel returns a product's stock level, preferring the Redis mirror
func (l *Ledger) StockLevel(ctx context.Context, productID int64) (int, error) {
	qty, found, err := l.redis.GetStockLevel(ctx, productID)
	if err != nil {
		l.logger.Warn("Stock cache read failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
	} else if found {
		return qty, nil
	}

	product, err := l.store.GetProductByID(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.StockQty, nil
}

// SyncStockToRedis seeds the mirror with every managed product's stock level
func (l *Ledger) SyncStockToRedis(ctx context.Context) error {
	products, err := l.store.GetManagedProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load managed products: %w", err)
	}

	for _, p := range products {
		if err := l.redis.SetStockLevel(ctx, p.ID, p.StockQty); err != nil {
			l.logger.Error("Failed to seed stock cache",
				zap.Int64("product_id", p.ID),
				zap.Error(err))
		}
	}

	l.logger.Info("Stock cache synced", zap.Int("count", len(products)))
	return nil
}

func (l *Ledger) mirror(ctx context.Context, productID int64, qty int) {
	if err := l.redis.SetStockLevel(ctx, productID, qty); err != nil {
		l.logger.Error("Failed to mirror stock level",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}
