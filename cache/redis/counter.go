// Package redis provides a Redis-backed windowed counter so rate limits
// survive restarts and can be shared by multiple instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pterolink:ratelimit:"

// Counter implements cache.Counter on a Redis client. The window TTL is set
// only when the key is created, so later increments never extend it.
type Counter struct {
	client *redis.Client
}

// NewCounter wraps an existing Redis client.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// Increment implements cache.Counter.Increment.
func (c *Counter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := keyPrefix + key

	count, err := c.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis counter incr: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return 0, fmt.Errorf("redis counter expire: %w", err)
		}
	}
	return count, nil
}

// Close releases the underlying client connection.
func (c *Counter) Close() error {
	return c.client.Close()
}
