package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetStockLevel mirrors a product's stock level into the cache. The database
// is the source of truth; this is a best-effort read path for the API.
func (c *Client) SetStockLevel(ctx context.Context, productID int64, qty int) error {
	return c.rdb.Set(ctx, stockKey(productID), qty, 0).Err()
}

// GetStockLevel retrieves a cached stock level. Returns found=false on a miss.
func (c *Client) GetStockLevel(ctx context.Context, productID int64) (qty int, found bool, err error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	qty, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock level for product %d: %w", productID, err)
	}
	return qty, true, nil
}

// AcquireOrderLock takes the cross-replica lock for an order. The token
// identifies the holder so only the owner can release.
func (c *Client) AcquireOrderLock(ctx context.Context, orderID int64, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(orderID), token, ttl).Result()
}

// ReleaseOrderLock releases an order lock if the token still owns it
func (c *Client) ReleaseOrderLock(ctx context.Context, orderID int64, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(orderID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

func lockKey(orderID int64) string {
	return fmt.Sprintf("lock:order:%d", orderID)
}
