// Package updater keeps live status views fresh. It owns the set of active
// subscriptions, polls the panel for each on a fixed cadence, persists the
// samples, drives re-render, and evicts subscriptions on permission loss,
// render-target loss, repeated poll failure or idleness.
package updater

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pterolink/pterolink/domain"
)

const (
	// DefaultInterval is the poll cadence.
	DefaultInterval = 30 * time.Second

	// DefaultCleanupInterval is the idle-eviction cadence.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultIdleTimeout evicts subscriptions nobody has refreshed for
	// this long, bounding memory for views nobody is watching.
	DefaultIdleTimeout = time.Hour

	// DefaultMaxFailures evicts a subscription after this many
	// consecutive soft failures; any success resets the count.
	DefaultMaxFailures = 3

	// DefaultMaxInFlight caps concurrent panel polls within one tick.
	DefaultMaxInFlight = 8
)

// Subscription is one live binding between a rendered status view and a
// server's telemetry. Scheduler-owned, in-memory, never persisted.
type Subscription struct {
	ID          string
	ChannelRef  string
	ServerID    string
	UserID      string
	LastUpdate  time.Time
	UpdateCount int
	FailCount   int
}

// Renderer is the chat-interface collaborator. Resolve reports whether the
// render target still exists; Render repaints it with fresh data.
type Renderer interface {
	Resolve(ctx context.Context, sub Subscription) (bool, error)
	Render(ctx context.Context, sub Subscription, detail *domain.ServerDetails, usage *domain.ResourceUsage) error
}

// PermissionChecker re-checks verified ownership each tick; revocation after
// registration evicts the subscription.
type PermissionChecker interface {
	HasServerPermission(ctx context.Context, userID, serverID string) (bool, error)
}

// PanelProvider resolves the subscriber's own panel client.
type PanelProvider interface {
	ClientFor(ctx context.Context, userID string) (domain.PanelAPI, error)
}

// Config overrides the defaults; zero fields keep them.
type Config struct {
	Interval        time.Duration
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxFailures     int
	MaxInFlight     int
}

// Updater is the status polling scheduler.
type Updater struct {
	renderer  Renderer
	perms     PermissionChecker
	panels    PanelProvider
	telemetry domain.TelemetryRepository

	interval        time.Duration
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	maxFailures     int
	maxInFlight     int

	mu   sync.Mutex
	subs map[string]*Subscription

	ticking atomic.Bool
	now     func() time.Time
}

// New wires the scheduler. Start must be called to begin ticking;
// registration works before and after Start.
func New(
	renderer Renderer,
	perms PermissionChecker,
	panels PanelProvider,
	telemetry domain.TelemetryRepository,
	cfg Config,
) *Updater {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	return &Updater{
		renderer:        renderer,
		perms:           perms,
		panels:          panels,
		telemetry:       telemetry,
		interval:        cfg.Interval,
		cleanupInterval: cfg.CleanupInterval,
		idleTimeout:     cfg.IdleTimeout,
		maxFailures:     cfg.MaxFailures,
		maxInFlight:     cfg.MaxInFlight,
		subs:            make(map[string]*Subscription),
		now:             time.Now,
	}
}

// Register adds a subscription for a rendered view. Re-registering the same
// ID resets its counters.
func (u *Updater) Register(subID, channelRef, serverID, userID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.subs[subID] = &Subscription{
		ID:         subID,
		ChannelRef: channelRef,
		ServerID:   serverID,
		UserID:     userID,
		LastUpdate: u.now(),
	}
	log.Debug().Str("subscriptionID", subID).Str("serverID", serverID).Msg("Status subscription registered")
}

// Unregister removes a subscription. Idempotent.
func (u *Updater) Unregister(subID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.subs[subID]; ok {
		delete(u.subs, subID)
		log.Debug().Str("subscriptionID", subID).Msg("Status subscription unregistered")
	}
}

// Count reports the number of active subscriptions.
func (u *Updater) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.subs)
}

// Start runs the poll and cleanup loops until ctx is cancelled. Each tick
// runs detached so a slow tick never blocks the timer; a fire that arrives
// while the previous tick is still in flight is skipped, so ticks never
// overlap and pileup is bounded to one.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	cleanup := time.NewTicker(u.cleanupInterval)
	defer ticker.Stop()
	defer cleanup.Stop()

	log.Info().
		Dur("interval", u.interval).
		Dur("idleTimeout", u.idleTimeout).
		Msg("Status updater started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Status updater stopped")
			return
		case <-ticker.C:
			go u.runTick(ctx)
		case <-cleanup.C:
			u.runCleanup()
		}
	}
}

// runTick polls every subscription registered at tick start. Safe to call
// directly in tests.
func (u *Updater) runTick(ctx context.Context) {
	if !u.ticking.CompareAndSwap(false, true) {
		log.Debug().Msg("Previous tick still in flight; skipping")
		return
	}
	defer u.ticking.Store(false)

	// Snapshot under the lock so registration and eviction during the
	// fan-out never corrupt iteration.
	u.mu.Lock()
	snapshot := make([]*Subscription, 0, len(u.subs))
	for _, sub := range u.subs {
		snapshot = append(snapshot, sub)
	}
	u.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	log.Debug().Int("subscriptions", len(snapshot)).Msg("Refreshing status subscriptions")

	sem := make(chan struct{}, u.maxInFlight)
	var wg sync.WaitGroup
	for _, sub := range snapshot {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub *Subscription) {
			defer wg.Done()
			defer func() { <-sem }()
			u.refreshOne(ctx, sub)
		}(sub)
	}
	wg.Wait()
}

// refreshOne runs the per-subscription sequence: permission re-check,
// render-target resolution, twin panel fetches, persist, re-render. A
// failure in one subscription never affects the others.
func (u *Updater) refreshOne(ctx context.Context, sub *Subscription) {
	allowed, err := u.perms.HasServerPermission(ctx, sub.UserID, sub.ServerID)
	if err != nil {
		u.recordFailure(sub, "permission check failed", err)
		return
	}
	if !allowed {
		u.evict(sub.ID, "permission revoked")
		return
	}

	exists, err := u.renderer.Resolve(ctx, *sub)
	if err != nil {
		u.recordFailure(sub, "render target resolution failed", err)
		return
	}
	if !exists {
		u.evict(sub.ID, "render target gone")
		return
	}

	client, err := u.panels.ClientFor(ctx, sub.UserID)
	if err != nil {
		u.recordFailure(sub, "panel client unavailable", err)
		return
	}

	detail, err := client.GetServerDetails(ctx, sub.ServerID)
	if err != nil {
		u.recordFailure(sub, "detail fetch failed", err)
		return
	}
	usage, err := client.GetServerResources(ctx, sub.ServerID)
	if err != nil {
		u.recordFailure(sub, "resource fetch failed", err)
		return
	}

	now := u.now()
	sample := domain.ResourceSample{
		ServerID:    sub.ServerID,
		CPUPercent:  usage.CPUPercent,
		MemoryBytes: usage.MemoryBytes,
		DiskBytes:   usage.DiskBytes,
		UptimeMS:    usage.UptimeMS,
		State:       usage.CurrentState,
		Timestamp:   now,
	}
	if err := u.telemetry.Append(ctx, sub.ServerID, sample); err != nil {
		u.recordFailure(sub, "telemetry persist failed", err)
		return
	}

	u.mu.Lock()
	rendered := *sub
	u.mu.Unlock()

	// The sample is persisted either way; the subscription only counts as
	// refreshed once the view is repainted.
	if err := u.renderer.Render(ctx, rendered, detail, usage); err != nil {
		u.recordFailure(sub, "render failed", err)
		return
	}

	u.mu.Lock()
	sub.FailCount = 0
	sub.UpdateCount++
	sub.LastUpdate = now
	u.mu.Unlock()
}

// recordFailure increments the consecutive failure count and evicts at the
// threshold. LastUpdate is deliberately untouched so idle cleanup still
// applies to permanently failing subscriptions.
func (u *Updater) recordFailure(sub *Subscription, reason string, err error) {
	u.mu.Lock()
	sub.FailCount++
	failCount := sub.FailCount
	u.mu.Unlock()

	log.Warn().
		Err(err).
		Str("subscriptionID", sub.ID).
		Str("serverID", sub.ServerID).
		Int("failCount", failCount).
		Msg("Status refresh failed: " + reason)

	if failCount >= u.maxFailures {
		u.evict(sub.ID, "failure threshold reached")
	}
}

func (u *Updater) evict(subID, reason string) {
	u.mu.Lock()
	_, ok := u.subs[subID]
	delete(u.subs, subID)
	u.mu.Unlock()

	if ok {
		log.Info().Str("subscriptionID", subID).Str("reason", reason).Msg("Status subscription evicted")
	}
}

// runCleanup evicts subscriptions whose last successful update is older than
// the idle timeout, independent of failure count.
func (u *Updater) runCleanup() {
	cutoff := u.now().Add(-u.idleTimeout)

	u.mu.Lock()
	var stale []string
	for id, sub := range u.subs {
		if sub.LastUpdate.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(u.subs, id)
	}
	u.mu.Unlock()

	for _, id := range stale {
		log.Info().Str("subscriptionID", id).Msg("Status subscription evicted: idle timeout")
	}
}
