package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalatmosoft/MetaMarket/internal/cache/memory"
	"github.com/kunalatmosoft/MetaMarket/internal/chain/chaintest"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/service"
	"github.com/kunalatmosoft/MetaMarket/internal/snapshot"
)

var future = time.Now().Add(72 * time.Hour)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	chain   *chaintest.Fake
	store   *memory.MarketListStore
	markets *service.MarketService
	locks   *memory.LockManager
	refresh *Refresher
	sub     *Subscriber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := chaintest.New()
	b := snapshot.NewBuilder(f, f, 4, discardLogger())
	store := memory.NewMarketListStore(nil)
	ms := service.NewMarketService(b, store, nil, nil, nil, service.MarketServiceConfig{}, discardLogger())
	t.Cleanup(ms.Close)
	locks := memory.NewLockManager()
	r := NewRefresher(ms, locks, time.Minute, discardLogger())
	return &fixture{
		chain:   f,
		store:   store,
		markets: ms,
		locks:   locks,
		refresh: r,
		sub:     NewSubscriber(f, b, r, nil, ms, nil, discardLogger()),
	}
}

func bet(id uint64, amount int64) domain.BetPlacedEvent {
	return domain.BetPlacedEvent{MarketID: id, Bettor: chaintest.Account, Outcome: true, Amount: big.NewInt(amount)}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	var zero T
	return zero
}

func TestWatchMarket_RebuildsOnMatchingBet(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)
	other := fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Other"}, future, 0, 0)

	w, err := fx.sub.WatchMarket(ctx, id, chaintest.Account)
	require.NoError(t, err)
	defer w.Close()

	fx.chain.EmitBetPlaced(ctx, bet(other, 1))
	fx.chain.SetShares(id, 2e18, 1e18)
	fx.chain.EmitBetPlaced(ctx, bet(id, 1))

	u := recv(t, w.Updates())
	assert.Equal(t, id, u.Market.ID)
	assert.InDelta(t, 2.0, u.Point.Yes, 1e-9)
	assert.InDelta(t, 1.0, u.Point.No, 1e-9)
	assert.Len(t, w.Chart(), 1)
	assert.Equal(t, 1, fx.chain.Calls("MarketShares"), "bets on other markets are ignored")
}

func TestWatchMarket_ChartKeepsLastTwenty(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)

	w, err := fx.sub.WatchMarket(ctx, id, "")
	require.NoError(t, err)
	defer w.Close()

	for i := 1; i <= 25; i++ {
		fx.chain.SetShares(id, int64(i)*1e17, 0)
		fx.chain.EmitBetPlaced(ctx, bet(id, 1))
		recv(t, w.Updates())
	}

	chart := w.Chart()
	require.Len(t, chart, domain.ChartCapacity)
	assert.InDelta(t, 0.6, chart[0].Yes, 1e-9)
	assert.InDelta(t, 2.5, chart[len(chart)-1].Yes, 1e-9)
}

func TestWatchMarket_RepeatedWatchAndClose(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)

	for range 3 {
		w, err := fx.sub.WatchMarket(ctx, id, "")
		require.NoError(t, err)
		w.Close()
		w.Close()
	}
	assert.Zero(t, fx.sub.Active())
	assert.Zero(t, fx.chain.ActiveSubscriptions())

	w, err := fx.sub.WatchMarket(ctx, id, "")
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, 1, fx.chain.ActiveSubscriptions())

	fx.chain.EmitBetPlaced(ctx, bet(id, 1))
	recv(t, w.Updates())
	assert.Equal(t, 1, fx.chain.Calls("MarketShares"), "one handler per event")
}

func TestWatchMarket_ContextCancelReleases(t *testing.T) {
	fx := newFixture(t)
	id := fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := fx.sub.WatchMarket(ctx, id, "")
	require.NoError(t, err)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end on cancel")
	}
	_, ok := <-w.Updates()
	assert.False(t, ok)
	assert.Zero(t, fx.sub.Active())
	assert.Zero(t, fx.chain.ActiveSubscriptions())
}

// slowBuilder blocks every Build until released.
type slowBuilder struct {
	started chan struct{}
	release chan struct{}
}

func (b *slowBuilder) Build(_ context.Context, id uint64, _ string) (domain.Market, error) {
	b.started <- struct{}{}
	<-b.release
	return domain.Market{ID: id, YesShares: big.NewInt(1), NoShares: big.NewInt(1)}, nil
}

func TestWatchMarket_CloseDropsInFlightRebuild(t *testing.T) {
	f := chaintest.New()
	b := &slowBuilder{started: make(chan struct{}, 1), release: make(chan struct{})}
	pub := &recordingPublisher{}
	sub := NewSubscriber(f, b, nil, nil, pub, nil, discardLogger())
	ctx := context.Background()

	w, err := sub.WatchMarket(ctx, 1, "")
	require.NoError(t, err)
	f.EmitBetPlaced(ctx, bet(1, 1))
	<-b.started

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool { return f.ActiveSubscriptions() == 0 }, time.Second, 5*time.Millisecond)
	close(b.release)
	<-closed

	for range w.Updates() {
		t.Fatal("update delivered after close")
	}
	assert.Zero(t, w.series.Len())
	assert.Zero(t, pub.count)
}

type recordingPublisher struct {
	count int
}

func (p *recordingPublisher) Publish(context.Context, string, domain.Market, *domain.ChartPoint) {
	p.count++
}

type fixedHistory struct {
	samples []domain.ShareSample
}

func (h fixedHistory) Append(context.Context, domain.ShareSample) error { return nil }

func (h fixedHistory) Recent(_ context.Context, _ uint64, limit int) ([]domain.ShareSample, error) {
	if len(h.samples) > limit {
		return h.samples[len(h.samples)-limit:], nil
	}
	return h.samples, nil
}

func TestWatchMarket_SeedsChartFromHistory(t *testing.T) {
	f := chaintest.New()
	id := f.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)
	h := fixedHistory{}
	for i := range 30 {
		h.samples = append(h.samples, domain.ShareSample{
			MarketID:   id,
			YesShares:  big.NewInt(int64(i) * 1e17),
			NoShares:   new(big.Int),
			ObservedAt: time.Unix(int64(i), 0),
		})
	}
	sub := NewSubscriber(f, snapshot.NewBuilder(f, nil, 1, discardLogger()), nil, h, nil, nil, discardLogger())

	w, err := sub.WatchMarket(context.Background(), id, "")
	require.NoError(t, err)
	defer w.Close()

	chart := w.Chart()
	require.Len(t, chart, domain.ChartCapacity)
	assert.InDelta(t, 1.0, chart[0].Yes, 1e-9)
}

func TestWatchList_RebuildsOnMarketCreated(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	w, err := fx.sub.WatchList(ctx)
	require.NoError(t, err)
	defer w.Close()

	_, err = fx.chain.CreateMarket(ctx, []byte(`{"question":"New?"}`), future, big.NewInt(1e18))
	require.NoError(t, err)

	u := recv(t, w.Updates())
	assert.Equal(t, ReasonEvent, u.Reason)
	require.Len(t, u.Markets, 1)
	assert.Equal(t, "New?", u.Markets[0].Question)

	cached, ok, err := fx.store.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, cached.Data, 1)
}

func TestWatchList_CreateDuringHeldLockIsRebuiltAfterRelease(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	w, err := fx.sub.WatchList(ctx)
	require.NoError(t, err)
	defer w.Close()

	// A TTL rebuild on another replica holds the lock while the market lands.
	unlock, err := fx.locks.Acquire(ctx, rebuildLockKey, time.Minute)
	require.NoError(t, err)
	_, err = fx.chain.CreateMarket(ctx, []byte(`{"question":"During lock?"}`), future, big.NewInt(1e18))
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	select {
	case <-w.Updates():
		t.Fatal("rebuilt while the lock was held")
	default:
	}
	assert.Zero(t, fx.chain.Calls("MarketCount"))
	unlock()

	select {
	case u, ok := <-w.Updates():
		require.True(t, ok, "watch ended")
		assert.Equal(t, ReasonEvent, u.Reason)
		require.Len(t, u.Markets, 1)
		assert.Equal(t, "During lock?", u.Markets[0].Question)
	case <-time.After(time.Second):
		t.Fatal("market created under a held lock was never rebuilt")
	}

	cached, ok, err := fx.store.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, cached.Data, 1)
}

func TestRefresher_TriggerEventGivesUpWhenContextEnds(t *testing.T) {
	fx := newFixture(t)
	unlock, err := fx.locks.Acquire(context.Background(), rebuildLockKey, time.Minute)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = fx.refresh.TriggerEvent(ctx, domain.MarketCreatedEvent{MarketID: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, fx.chain.Calls("MarketCount"))
}

func TestWatchList_RequiresRefresher(t *testing.T) {
	sub := NewSubscriber(chaintest.New(), nil, nil, nil, nil, nil, discardLogger())
	_, err := sub.WatchList(context.Background())
	assert.Error(t, err)
}

func TestRefresher_TriggerTTL(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)

	ran, err := fx.refresh.TriggerTTL(ctx)
	require.NoError(t, err)
	assert.True(t, ran, "missing cache triggers a rebuild")

	ran, err = fx.refresh.TriggerTTL(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "fresh cache is left alone")
	assert.Equal(t, 1, fx.chain.Calls("MarketCount"))
}

func TestRefresher_TriggerEvent(t *testing.T) {
	fx := newFixture(t)
	fx.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Q"}, future, 0, 0)

	markets, err := fx.refresh.TriggerEvent(context.Background(), domain.MarketCreatedEvent{MarketID: 1})
	require.NoError(t, err)
	assert.Len(t, markets, 1)
}

func TestRefresher_LockHeld(t *testing.T) {
	f := chaintest.New()
	locks := memory.NewLockManager()
	ms := service.NewMarketService(snapshot.NewBuilder(f, f, 1, discardLogger()), memory.NewMarketListStore(nil), nil, nil, nil, service.MarketServiceConfig{}, discardLogger())
	defer ms.Close()
	r := NewRefresher(ms, locks, time.Minute, discardLogger())

	unlock, err := locks.Acquire(context.Background(), rebuildLockKey, time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = r.Rebuild(context.Background(), ReasonTTL)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))
	assert.Zero(t, f.Calls("MarketCount"))
}
