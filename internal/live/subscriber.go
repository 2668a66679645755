// Package live keeps market views current by rebuilding snapshots when
// contract events arrive.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
)

const eventBuffer = 16

// Builder rebuilds one market snapshot.
type Builder interface {
	Build(ctx context.Context, id uint64, viewer string) (domain.Market, error)
}

// Publisher fans a rebuilt market out to other listeners.
type Publisher interface {
	Publish(ctx context.Context, reason string, m domain.Market, point *domain.ChartPoint)
}

// MarketUpdate is emitted by a MarketWatch after each rebuild.
type MarketUpdate struct {
	Market domain.Market
	Point  domain.ChartPoint
}

// ListUpdate is emitted by a ListWatch after each list rebuild.
type ListUpdate struct {
	Reason  string
	Markets []domain.Market
}

// Subscriber opens watches on contract events.
type Subscriber struct {
	events    domain.EventSource
	builder   Builder
	refresher *Refresher
	history   domain.ShareHistoryStore
	publisher Publisher
	metrics   *observability.Metrics
	active    atomic.Int32
	now       func() time.Time
	logger    *slog.Logger
}

// NewSubscriber creates a Subscriber. history, publisher and metrics may be
// nil; refresher is needed only for list watches.
func NewSubscriber(
	events domain.EventSource,
	builder Builder,
	refresher *Refresher,
	history domain.ShareHistoryStore,
	publisher Publisher,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Subscriber {
	return &Subscriber{
		events:    events,
		builder:   builder,
		refresher: refresher,
		history:   history,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "live")),
	}
}

// Active returns the number of open watches.
func (s *Subscriber) Active() int { return int(s.active.Load()) }

// watch is the lifecycle shared by market and list watches.
type watch struct {
	cancel  context.CancelFunc
	done    chan struct{}
	sub     domain.Subscription
	release sync.Once
}

func (w *watch) stop(s *Subscriber) {
	w.release.Do(func() {
		w.sub.Unsubscribe()
		s.active.Add(-1)
		s.metrics.WatchClosed()
	})
}

// Close unsubscribes and waits for the handler to exit. Results of a rebuild
// still in flight are dropped. Close is idempotent.
func (w *watch) Close() {
	w.cancel()
	<-w.done
}

// Done is closed once the watch has ended.
func (w *watch) Done() <-chan struct{} { return w.done }

// MarketWatch follows bets on one market.
type MarketWatch struct {
	watch
	id      uint64
	viewer  string
	series  *domain.ChartSeries
	updates chan MarketUpdate
}

// Updates delivers one MarketUpdate per bet on the market. It is closed when
// the watch ends.
func (w *MarketWatch) Updates() <-chan MarketUpdate { return w.updates }

// Chart returns the chart samples, oldest first.
func (w *MarketWatch) Chart() []domain.ChartPoint { return w.series.Points() }

// MarketID returns the watched market.
func (w *MarketWatch) MarketID() uint64 { return w.id }

// WatchMarket subscribes to BetPlaced and rebuilds market id for viewer on
// every bet placed on it. The chart is seeded from the share history when
// one is configured.
func (s *Subscriber) WatchMarket(ctx context.Context, id uint64, viewer string) (*MarketWatch, error) {
	series := domain.NewChartSeries(domain.ChartCapacity)
	s.seedChart(ctx, id, series)

	wctx, cancel := context.WithCancel(ctx)
	events := make(chan domain.BetPlacedEvent, eventBuffer)
	sub, err := s.events.WatchBetPlaced(wctx, events)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("live: watch market %d: %w", id, err)
	}

	w := &MarketWatch{
		watch:   watch{cancel: cancel, done: make(chan struct{}), sub: sub},
		id:      id,
		viewer:  viewer,
		series:  series,
		updates: make(chan MarketUpdate, eventBuffer),
	}
	s.active.Add(1)
	s.metrics.WatchOpened()

	go s.runMarket(wctx, w, events)
	return w, nil
}

func (s *Subscriber) runMarket(ctx context.Context, w *MarketWatch, events <-chan domain.BetPlacedEvent) {
	defer close(w.done)
	defer close(w.updates)
	defer w.stop(s)

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.sub.Err():
			if ok && err != nil {
				s.logger.WarnContext(ctx, "bet subscription ended",
					slog.Uint64("market_id", w.id),
					slog.String("error", err.Error()),
				)
			}
			return
		case ev := <-events:
			s.metrics.ChainEvent("BetPlaced")
			if ev.MarketID != w.id {
				continue
			}
			u, err := s.rebuild(ctx, w, ev)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.WarnContext(ctx, "rebuild after bet failed",
					slog.Uint64("market_id", w.id),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case w.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Subscriber) rebuild(ctx context.Context, w *MarketWatch, ev domain.BetPlacedEvent) (MarketUpdate, error) {
	m, err := s.builder.Build(ctx, w.id, w.viewer)
	if err != nil {
		return MarketUpdate{}, err
	}
	if ctx.Err() != nil {
		return MarketUpdate{}, ctx.Err()
	}

	point := domain.ChartPoint{
		Label: s.now(),
		Yes:   derive.EtherFloat(m.YesShares),
		No:    derive.EtherFloat(m.NoShares),
	}
	w.series.Append(point)
	s.logger.DebugContext(ctx, "market rebuilt after bet",
		slog.Uint64("market_id", w.id),
		slog.String("tx_hash", ev.TxHash),
	)

	if s.publisher != nil {
		s.publisher.Publish(ctx, "bet_placed", m, &point)
	}
	return MarketUpdate{Market: m, Point: point}, nil
}

func (s *Subscriber) seedChart(ctx context.Context, id uint64, series *domain.ChartSeries) {
	if s.history == nil {
		return
	}
	samples, err := s.history.Recent(ctx, id, series.Cap())
	if err != nil {
		s.logger.WarnContext(ctx, "chart history unavailable",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, sample := range samples {
		series.Append(domain.ChartPoint{
			Label: sample.ObservedAt,
			Yes:   derive.EtherFloat(sample.YesShares),
			No:    derive.EtherFloat(sample.NoShares),
		})
	}
}

// ListWatch follows market creation.
type ListWatch struct {
	watch
	updates chan ListUpdate
}

// Updates delivers the rebuilt list after every MarketCreated event. It is
// closed when the watch ends.
func (w *ListWatch) Updates() <-chan ListUpdate { return w.updates }

// WatchList subscribes to MarketCreated and rebuilds the cached list on
// every event.
func (s *Subscriber) WatchList(ctx context.Context) (*ListWatch, error) {
	if s.refresher == nil {
		return nil, errors.New("live: watch list: no refresher configured")
	}
	wctx, cancel := context.WithCancel(ctx)
	events := make(chan domain.MarketCreatedEvent, eventBuffer)
	sub, err := s.events.WatchMarketCreated(wctx, events)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("live: watch list: %w", err)
	}

	w := &ListWatch{
		watch:   watch{cancel: cancel, done: make(chan struct{}), sub: sub},
		updates: make(chan ListUpdate, 1),
	}
	s.active.Add(1)
	s.metrics.WatchOpened()

	go s.runList(wctx, w, events)
	return w, nil
}

func (s *Subscriber) runList(ctx context.Context, w *ListWatch, events <-chan domain.MarketCreatedEvent) {
	defer close(w.done)
	defer close(w.updates)
	defer w.stop(s)

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.sub.Err():
			if ok && err != nil {
				s.logger.WarnContext(ctx, "market created subscription ended",
					slog.String("error", err.Error()),
				)
			}
			return
		case ev := <-events:
			s.metrics.ChainEvent("MarketCreated")
			markets, err := s.refresher.TriggerEvent(ctx, ev)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.WarnContext(ctx, "list rebuild after create failed",
					slog.Uint64("market_id", ev.MarketID),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case w.updates <- ListUpdate{Reason: ReasonEvent, Markets: markets}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// RunListWatch keeps a list watch open until ctx is done, re-subscribing
// with a delay whenever the subscription drops. Updates are discarded; the
// refresher has already written and published them.
func (s *Subscriber) RunListWatch(ctx context.Context, retry time.Duration) error {
	for {
		w, err := s.WatchList(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "list watch failed, retrying", slog.String("error", err.Error()))
		} else {
			s.logger.Info("list watch started")
			for range w.Updates() {
			}
			w.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}
