// Package ratelimit provides the per-(user, action) fixed-window request
// throttle.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pterolink/pterolink/cache"
	serrors "github.com/pterolink/pterolink/errors"
)

const (
	// DefaultMaxPerWindow is the number of admitted calls per window.
	DefaultMaxPerWindow = 10

	// DefaultWindow is the fixed throttle window.
	DefaultWindow = time.Minute
)

// Config overrides the default limits.
type Config struct {
	MaxPerWindow int64
	Window       time.Duration
}

// Limiter throttles calls per (user, action) key against a windowed counter
// backend. Denied calls still increment the counter but never reset the
// window.
type Limiter struct {
	counter cache.Counter
	max     int64
	window  time.Duration
}

// New creates a limiter with the default 10-per-60s policy.
func New(counter cache.Counter) *Limiter {
	return NewWithConfig(counter, Config{})
}

// NewWithConfig creates a limiter with explicit limits; zero fields fall
// back to the defaults.
func NewWithConfig(counter cache.Counter, cfg Config) *Limiter {
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = DefaultMaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Limiter{counter: counter, max: cfg.MaxPerWindow, window: cfg.Window}
}

// Allow records one call for the (user, action) pair and reports whether it
// is admitted. The first call in a window starts it; the 11th and later
// calls inside an active window are denied.
func (l *Limiter) Allow(ctx context.Context, userID, action string) (bool, error) {
	count, err := l.counter.Increment(ctx, userID+":"+action, l.window)
	if err != nil {
		return false, fmt.Errorf("rate limiter backend: %w", err)
	}
	return count <= l.max, nil
}

// Check is Allow with the taxonomy error baked in: nil when admitted,
// ErrRateLimited when throttled.
func (l *Limiter) Check(ctx context.Context, userID, action string) error {
	allowed, err := l.Allow(ctx, userID, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s/%s", serrors.ErrRateLimited, userID, action)
	}
	return nil
}
