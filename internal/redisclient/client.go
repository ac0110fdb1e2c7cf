package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func scrapeKey(merchantID, productID int64) string {
	return fmt.Sprintf("scrape:%d:%d", merchantID, productID)
}

// MarkScraped records a successful scrape for a (merchant, product) pair.
// The key expires after ttl, after which the pair is eligible again.
func (c *Client) MarkScraped(ctx context.Context, merchantID, productID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, scrapeKey(merchantID, productID), time.Now().Unix(), ttl).Err()
}

// IsScrapedFresh reports whether a (merchant, product) pair was scraped
// within the cache TTL. Stale reads only cost a redundant scrape.
func (c *Client) IsScrapedFresh(ctx context.Context, merchantID, productID int64) (bool, error) {
	n, err := c.rdb.Exists(ctx, scrapeKey(merchantID, productID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcquireScrapeLock claims exclusive ownership of one (merchant, product)
// scrape so concurrent dispatches do not duplicate work.
func (c *Client) AcquireScrapeLock(ctx context.Context, merchantID, productID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", scrapeKey(merchantID, productID))
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseScrapeLock releases a scrape lock
func (c *Client) ReleaseScrapeLock(ctx context.Context, merchantID, productID int64) error {
	key := fmt.Sprintf("lock:%s", scrapeKey(merchantID, productID))
	return c.rdb.Del(ctx, key).Err()
}
