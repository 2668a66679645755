package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// Rebuild reasons.
const (
	ReasonTTL   = "ttl"
	ReasonEvent = "market_created"
)

const rebuildLockKey = "markets:rebuild"

// An event rebuild that finds the lock held waits for it, starting at
// lockRetryDelay and doubling up to lockRetryMaxDelay.
const (
	lockRetryDelay    = 50 * time.Millisecond
	lockRetryMaxDelay = time.Second
)

// ListRefresher rebuilds and stores the market list.
type ListRefresher interface {
	Refresh(ctx context.Context, reason string) ([]domain.Market, error)
	Stale(ctx context.Context) (bool, error)
}

// Refresher funnels the TTL and event triggers into one rebuild entry point.
// With a lock manager only one replica rebuilds at a time.
type Refresher struct {
	list    ListRefresher
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRefresher creates a Refresher. locks may be nil.
func NewRefresher(list ListRefresher, locks domain.LockManager, lockTTL time.Duration, logger *slog.Logger) *Refresher {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Refresher{
		list:    list,
		locks:   locks,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "refresher")),
	}
}

// Rebuild rebuilds the list now. It returns domain.ErrLockHeld when another
// rebuild holds the lock.
func (r *Refresher) Rebuild(ctx context.Context, reason string) ([]domain.Market, error) {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, rebuildLockKey, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("live: rebuild lock: %w", err)
		}
		defer unlock()
	}
	return r.list.Refresh(ctx, reason)
}

// TriggerTTL rebuilds when the cached list is missing or stale. It reports
// whether a rebuild ran.
func (r *Refresher) TriggerTTL(ctx context.Context) (bool, error) {
	stale, err := r.list.Stale(ctx)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	if _, err := r.Rebuild(ctx, ReasonTTL); err != nil {
		return false, err
	}
	return true, nil
}

// TriggerEvent rebuilds after a market was created. A rebuild already in
// progress may have read the market count before the new market existed, so
// when the lock is held TriggerEvent waits for it and rebuilds again. It
// gives up only when ctx is done.
func (r *Refresher) TriggerEvent(ctx context.Context, ev domain.MarketCreatedEvent) ([]domain.Market, error) {
	r.logger.InfoContext(ctx, "market created, rebuilding list",
		slog.Uint64("market_id", ev.MarketID),
		slog.String("tx_hash", ev.TxHash),
	)
	delay := lockRetryDelay
	for {
		markets, err := r.Rebuild(ctx, ReasonEvent)
		if !errors.Is(err, domain.ErrLockHeld) {
			return markets, err
		}
		r.logger.DebugContext(ctx, "rebuild lock held, waiting",
			slog.Uint64("market_id", ev.MarketID),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("live: rebuild after market %d: %w", ev.MarketID, ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, lockRetryMaxDelay)
	}
}

// RunTTL checks the cache every interval until ctx is done.
func (r *Refresher) RunTTL(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("ttl refresher started", slog.Duration("interval", interval))
	defer r.logger.Info("ttl refresher stopped")

	for {
		if _, err := r.TriggerTTL(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "ttl rebuild failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
