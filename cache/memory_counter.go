package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCounter implements Counter using ttlcache. Touch-on-hit is disabled
// so an entry expires exactly one window after its first increment,
// regardless of traffic: fixed-window semantics.
type MemoryCounter struct {
	cache *ttlcache.Cache[string, *atomic.Int64]
}

// NewMemoryCounter creates an in-memory counter with automatic expiry of
// rolled-over windows.
func NewMemoryCounter() *MemoryCounter {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *atomic.Int64](),
	)

	go cache.Start()

	return &MemoryCounter{cache: cache}
}

// Increment implements Counter.Increment.
func (c *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	item, _ := c.cache.GetOrSet(key, new(atomic.Int64),
		ttlcache.WithTTL[string, *atomic.Int64](window))
	return item.Value().Add(1), nil
}

// Len reports the number of live windows, for diagnostics.
func (c *MemoryCounter) Len() int {
	return c.cache.Len()
}

// Close stops the expiry goroutine.
func (c *MemoryCounter) Close() error {
	c.cache.Stop()
	return nil
}
