package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
)

// SnapshotBuilder assembles market snapshots from the chain.
type SnapshotBuilder interface {
	Build(ctx context.Context, id uint64, viewer string) (domain.Market, error)
	BuildAll(ctx context.Context, viewer string) ([]domain.Market, error)
}

// MarketList is a market list together with where it came from.
type MarketList struct {
	Markets   []domain.Market
	Timestamp time.Time
	Cached    bool
	Fresh     bool
}

// MarketServiceConfig tunes the list cache policy. A cached list younger
// than Revalidate is served without a background re-fetch.
type MarketServiceConfig struct {
	TTL            time.Duration
	Revalidate     time.Duration
	Viewer         string
	RefreshTimeout time.Duration
}

// defaultRevalidate bounds read-triggered re-fetches to two per minute.
const defaultRevalidate = 30 * time.Second

// MarketService serves the market list from the cache and keeps the cache
// current. Every refresh overwrites the cache, except refreshes that started
// before a newer one already wrote.
type MarketService struct {
	builder SnapshotBuilder
	store   domain.MarketListStore
	bus     domain.SignalBus
	history domain.ShareHistoryStore
	metrics *observability.Metrics
	cfg     MarketServiceConfig
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	issued  uint64
	written uint64

	sampleMu sync.Mutex
	sampled  map[uint64][2]string

	inflight atomic.Bool
	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewMarketService creates a MarketService. bus, history and metrics may be
// nil.
func NewMarketService(
	builder SnapshotBuilder,
	store domain.MarketListStore,
	bus domain.SignalBus,
	history domain.ShareHistoryStore,
	metrics *observability.Metrics,
	cfg MarketServiceConfig,
	logger *slog.Logger,
) *MarketService {
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultCacheTTL
	}
	if cfg.Revalidate <= 0 {
		cfg.Revalidate = defaultRevalidate
	}
	cfg.Revalidate = min(cfg.Revalidate, cfg.TTL)
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MarketService{
		builder:  builder,
		store:    store,
		bus:      bus,
		history:  history,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "market_service")),
		sampled:  make(map[uint64][2]string),
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Viewer returns the account whose positions are included in list snapshots.
func (s *MarketService) Viewer() string { return s.cfg.Viewer }

// TTL returns the freshness window of the cached list.
func (s *MarketService) TTL() time.Duration { return s.cfg.TTL }

// Load returns the market list. A cached list is returned at once, fresh or
// stale, and a background rebuild is started unless the list was written
// within the revalidate interval. Without a cached list the rebuild runs
// synchronously.
func (s *MarketService) Load(ctx context.Context) (MarketList, error) {
	cached, ok, err := s.store.Read(ctx)
	if err != nil {
		s.metrics.CacheRead("error")
		s.logger.WarnContext(ctx, "market_service: cache read failed",
			slog.String("error", err.Error()),
		)
		ok = false
	}

	if ok {
		fresh := cached.IsFresh(s.now(), s.cfg.TTL)
		if fresh {
			s.metrics.CacheRead("fresh")
		} else {
			s.metrics.CacheRead("stale")
		}
		if s.now().Sub(cached.Timestamp) >= s.cfg.Revalidate {
			s.RefreshInBackground("load")
		}
		return MarketList{
			Markets:   cached.Data,
			Timestamp: cached.Timestamp,
			Cached:    true,
			Fresh:     fresh,
		}, nil
	}

	if err == nil {
		s.metrics.CacheRead("miss")
	}
	markets, err := s.Refresh(ctx, "load")
	if err != nil {
		return MarketList{}, err
	}
	return MarketList{Markets: markets, Timestamp: s.now(), Fresh: true}, nil
}

// List loads the market list and applies f and sortBy to it.
func (s *MarketService) List(ctx context.Context, f derive.Filter, sortBy string) (MarketList, error) {
	list, err := s.Load(ctx)
	if err != nil {
		return MarketList{}, err
	}
	list.Markets = derive.Apply(list.Markets, f, sortBy)
	return list, nil
}

// Get builds a fresh snapshot of one market for viewer. It never reads the
// cache, so it is safe to gate writes on.
func (s *MarketService) Get(ctx context.Context, id uint64, viewer string) (domain.Market, error) {
	m, err := s.builder.Build(ctx, id, viewer)
	if err != nil {
		s.metrics.SnapshotBuilt("error")
		return domain.Market{}, fmt.Errorf("market_service: get %d: %w", id, err)
	}
	s.metrics.SnapshotBuilt("ok")
	return m, nil
}

// Stale reports whether the cached list is missing or older than the TTL.
func (s *MarketService) Stale(ctx context.Context) (bool, error) {
	cached, ok, err := s.store.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("market_service: read cache: %w", err)
	}
	return !ok || !cached.IsFresh(s.now(), s.cfg.TTL), nil
}

// Refresh rebuilds the list from the chain and overwrites the cache. If a
// refresh issued later has already written, this result is dropped and the
// newer list is not touched.
func (s *MarketService) Refresh(ctx context.Context, reason string) ([]domain.Market, error) {
	s.mu.Lock()
	s.issued++
	gen := s.issued
	s.mu.Unlock()

	start := time.Now()
	markets, err := s.builder.BuildAll(ctx, s.cfg.Viewer)
	if err != nil {
		s.metrics.ListRefreshed(reason, "error", time.Since(start))
		return nil, fmt.Errorf("market_service: refresh: %w", err)
	}

	s.mu.Lock()
	if gen < s.written {
		s.mu.Unlock()
		s.metrics.ListRefreshed(reason, "superseded", time.Since(start))
		s.logger.DebugContext(ctx, "market_service: dropped superseded refresh",
			slog.Uint64("generation", gen),
		)
		return markets, nil
	}
	s.written = gen
	err = s.store.Write(ctx, markets)
	s.mu.Unlock()
	if err != nil {
		s.metrics.ListRefreshed(reason, "error", time.Since(start))
		return nil, fmt.Errorf("market_service: write cache: %w", err)
	}

	s.metrics.ListRefreshed(reason, "ok", time.Since(start))
	s.logger.InfoContext(ctx, "market_service: refreshed market list",
		slog.String("reason", reason),
		slog.Int("count", len(markets)),
		slog.Duration("took", time.Since(start)),
	)

	s.publishList(ctx, reason, markets)
	s.recordShares(ctx, markets)
	return markets, nil
}

// RefreshInBackground starts a rebuild unless one is already running. It
// reports whether a rebuild was started.
func (s *MarketService) RefreshInBackground(reason string) bool {
	if s.bgCtx.Err() != nil || !s.inflight.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)

		ctx, cancel := context.WithTimeout(s.bgCtx, s.cfg.RefreshTimeout)
		defer cancel()
		if _, err := s.Refresh(ctx, reason); err != nil {
			s.logger.WarnContext(ctx, "market_service: background refresh failed",
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
		}
	}()
	return true
}

// Publish announces a rebuilt market on its own channel and records a share
// sample for it.
func (s *MarketService) Publish(ctx context.Context, reason string, m domain.Market, point *domain.ChartPoint) {
	s.publish(ctx, domain.MarketChannel(m.ID), domain.Update{
		Kind:   domain.UpdateMarket,
		Reason: reason,
		Market: &m,
		Point:  point,
		At:     s.now(),
	})
	s.recordShares(ctx, []domain.Market{m})
}

// Close stops background refreshes and waits for them to finish.
func (s *MarketService) Close() {
	s.bgCancel()
	s.wg.Wait()
}

func (s *MarketService) publishList(ctx context.Context, reason string, markets []domain.Market) {
	s.publish(ctx, domain.ChannelMarkets, domain.Update{
		Kind:    domain.UpdateList,
		Reason:  reason,
		Markets: markets,
		At:      s.now(),
	})
}

func (s *MarketService) publish(ctx context.Context, channel string, u domain.Update) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(u)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: marshal update",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// recordShares appends a share sample for every market whose shares moved
// since the last sample this service recorded.
func (s *MarketService) recordShares(ctx context.Context, markets []domain.Market) {
	if s.history == nil {
		return
	}
	at := s.now()
	for _, m := range markets {
		if !s.sharesMoved(m) {
			continue
		}
		sample := domain.ShareSample{
			MarketID:   m.ID,
			YesShares:  m.YesShares,
			NoShares:   m.NoShares,
			ObservedAt: at,
		}
		if err := s.history.Append(ctx, sample); err != nil {
			s.logger.WarnContext(ctx, "market_service: record shares failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

func (s *MarketService) sharesMoved(m domain.Market) bool {
	cur := [2]string{m.YesShares.String(), m.NoShares.String()}
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()
	if last, ok := s.sampled[m.ID]; ok && last == cur {
		return false
	}
	s.sampled[m.ID] = cur
	return true
}
