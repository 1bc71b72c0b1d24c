// Package cache provides windowed counters backing the rate limiter, with
// in-memory and Redis implementations.
package cache

import (
	"context"
	"time"
)

// Counter increments a named counter inside a fixed window. The window
// starts at the first increment for the key and is never extended by later
// increments or denials; once it elapses the key resets.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}
