package domain

import (
	"context"
	"time"
)

// DefaultCacheTTL is the age after which a cached market list is stale.
const DefaultCacheTTL = 5 * time.Minute

// CachedMarketList is the last-known full market list with the instant it
// was written.
type CachedMarketList struct {
	Data      []Market  `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// IsFresh reports whether the list is younger than ttl at now. Staleness never
// blocks a read; it only schedules a refresh.
func (c CachedMarketList) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.Timestamp) < ttl
}

// MarketListStore persists the cached market list for one profile. Write
// overwrites unconditionally and stamps the current time.
type MarketListStore interface {
	Read(ctx context.Context) (CachedMarketList, bool, error)
	Write(ctx context.Context, markets []Market) error
	Clear(ctx context.Context) error
}

// Theme is the light/dark UI preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// PreferenceStore holds per-profile UI preferences.
type PreferenceStore interface {
	Theme(ctx context.Context, profile string) (Theme, error)
	SetTheme(ctx context.Context, profile string, theme Theme) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of live updates.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
