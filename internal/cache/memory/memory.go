// Package memory provides in-process implementations of the cache
// interfaces for single-replica runs and tests.
package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// MarketListStore keeps one cached list in memory.
type MarketListStore struct {
	mu   sync.RWMutex
	list *domain.CachedMarketList
	now  func() time.Time
}

// NewMarketListStore creates an empty store. now defaults to time.Now.
func NewMarketListStore(now func() time.Time) *MarketListStore {
	if now == nil {
		now = time.Now
	}
	return &MarketListStore{now: now}
}

// Read returns the cached list, or false when none was written.
func (s *MarketListStore) Read(context.Context) (domain.CachedMarketList, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.list == nil {
		return domain.CachedMarketList{}, false, nil
	}
	out := *s.list
	out.Data = append([]domain.Market(nil), s.list.Data...)
	return out, true, nil
}

// Write overwrites the list and stamps it.
func (s *MarketListStore) Write(_ context.Context, markets []domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = &domain.CachedMarketList{
		Data:      append([]domain.Market(nil), markets...),
		Timestamp: s.now(),
	}
	return nil
}

// Clear drops the list.
func (s *MarketListStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
	return nil
}

// PreferenceStore keeps per-profile themes in memory.
type PreferenceStore struct {
	mu     sync.RWMutex
	themes map[string]domain.Theme
}

// NewPreferenceStore creates an empty PreferenceStore.
func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{themes: map[string]domain.Theme{}}
}

// Theme returns the stored theme, or domain.ThemeLight when unset.
func (s *PreferenceStore) Theme(_ context.Context, profile string) (domain.Theme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.themes[profile]; ok {
		return t, nil
	}
	return domain.ThemeLight, nil
}

// SetTheme stores theme for profile.
func (s *PreferenceStore) SetTheme(_ context.Context, profile string, theme domain.Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes[profile] = theme
	return nil
}

// SignalBus fans payloads out to in-process subscribers. Channel names may
// be path.Match patterns. Slow subscribers drop messages.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	pattern string
	ch      chan []byte
}

// NewSignalBus creates a SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: map[*subscriber]struct{}{}}
}

// Publish delivers payload to every matching subscriber without blocking.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is cancelled, after which the
// returned channel is closed.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, err
	}
	s := &subscriber{pattern: channel, ch: make(chan []byte, 128)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// LockManager is a process-local domain.LockManager.
type LockManager struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: map[string]time.Time{}, now: time.Now}
}

// Acquire takes key until unlock is called or ttl passes.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, domain.ErrLockHeld
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key].Equal(exp) {
				delete(l.held, key)
			}
		})
	}, nil
}

var (
	_ domain.MarketListStore = (*MarketListStore)(nil)
	_ domain.PreferenceStore = (*PreferenceStore)(nil)
	_ domain.SignalBus       = (*SignalBus)(nil)
	_ domain.LockManager     = (*LockManager)(nil)
)
