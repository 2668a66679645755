package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalatmosoft/MetaMarket/internal/cache/memory"
	"github.com/kunalatmosoft/MetaMarket/internal/chain/chaintest"
	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

var future = time.Now().Add(48 * time.Hour)

func TestMarketService_LoadWithoutCacheFetchesSynchronously(t *testing.T) {
	store := memory.NewMarketListStore(nil)
	e := newEnv(t, store)
	e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 1, 2)
	e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "B"}, future, 3, 4)

	list, err := e.markets.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, list.Cached)
	assert.True(t, list.Fresh)
	require.Len(t, list.Markets, 2)
	assert.Equal(t, "A", list.Markets[0].Question)

	cached, ok, err := store.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, cached.Data, 2)
}

func TestMarketService_LoadReturnsStaleCacheAndRefreshes(t *testing.T) {
	ctx := context.Background()
	old := time.Now().Add(-10 * time.Minute)
	store := memory.NewMarketListStore(func() time.Time { return old })
	e := newEnv(t, store)
	e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 1, 2)
	require.NoError(t, store.Write(ctx, []domain.Market{{ID: 99}}))

	list, err := e.markets.Load(ctx)
	require.NoError(t, err)
	assert.True(t, list.Cached)
	assert.False(t, list.Fresh)
	require.Len(t, list.Markets, 1)
	assert.Equal(t, uint64(99), list.Markets[0].ID)

	require.Eventually(t, func() bool {
		cached, ok, _ := store.Read(ctx)
		return ok && len(cached.Data) == 1 && cached.Data[0].ID == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMarketService_LoadFreshCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMarketListStore(nil)
	e := newEnv(t, store)
	require.NoError(t, store.Write(ctx, []domain.Market{{ID: 7}}))

	for range 5 {
		list, err := e.markets.Load(ctx)
		require.NoError(t, err)
		assert.True(t, list.Cached)
		assert.True(t, list.Fresh)
	}
	e.markets.Close()
	assert.Zero(t, e.chain.Calls("MarketCount"), "a just-written list is not re-fetched on read")
}

func TestMarketService_LoadRevalidatesAgingFreshCache(t *testing.T) {
	ctx := context.Background()
	written := time.Now().Add(-2 * time.Minute)
	store := memory.NewMarketListStore(func() time.Time { return written })
	e := newEnv(t, store)
	e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 1, 2)
	require.NoError(t, store.Write(ctx, []domain.Market{{ID: 99}}))

	list, err := e.markets.Load(ctx)
	require.NoError(t, err)
	assert.True(t, list.Fresh)
	assert.Equal(t, uint64(99), list.Markets[0].ID)

	e.markets.Close()
	assert.Equal(t, 1, e.chain.Calls("MarketCount"))
	cached, ok, err := store.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached.Data, 1)
	assert.Equal(t, uint64(1), cached.Data[0].ID)
}

func TestMarketService_LoadPropagatesCountFailure(t *testing.T) {
	e := newEnv(t, memory.NewMarketListStore(nil))
	e.chain.FailCount(errors.New("rpc down"))

	_, err := e.markets.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestMarketService_List(t *testing.T) {
	e := newEnv(t, memory.NewMarketListStore(nil))
	e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Will BTC moon?", Category: "crypto"}, future, 1, 1)
	e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Rain tomorrow?", Category: "weather"}, future, 1, 1)

	list, err := e.markets.List(context.Background(), derive.Filter{Category: "crypto"}, derive.SortNewest)
	require.NoError(t, err)
	require.Len(t, list.Markets, 1)
	assert.Equal(t, "Will BTC moon?", list.Markets[0].Question)
}

func TestMarketService_GetReadsChainEveryTime(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, memory.NewMarketListStore(nil))
	id := e.chain.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 1, 2)

	_, err := e.markets.Get(ctx, id, "")
	require.NoError(t, err)
	e.chain.SetShares(id, 50, 60)
	m, err := e.markets.Get(ctx, id, "")
	require.NoError(t, err)

	assert.Equal(t, 2, e.chain.Calls("MarketShares"))
	assert.Equal(t, int64(50), m.YesShares.Int64())
}

func TestMarketService_RefreshPublishesList(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := chaintest.New()
	f.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 1, 2)
	bus := memory.NewSignalBus()
	ch, err := bus.Subscribe(ctx, domain.ChannelMarkets)
	require.NoError(t, err)

	ms := NewMarketService(newListBuilder(f), memory.NewMarketListStore(nil), bus, nil, nil, MarketServiceConfig{}, discardLogger())
	defer ms.Close()

	_, err = ms.Refresh(ctx, "test")
	require.NoError(t, err)

	select {
	case payload := <-ch:
		var u domain.Update
		require.NoError(t, json.Unmarshal(payload, &u))
		assert.Equal(t, domain.UpdateList, u.Kind)
		assert.Equal(t, "test", u.Reason)
		require.Len(t, u.Markets, 1)
	case <-time.After(time.Second):
		t.Fatal("no list update published")
	}
}

// gatedBuilder returns lists in the order tests release them.
type gatedBuilder struct {
	mu    sync.Mutex
	gates []chan []domain.Market
	calls int
}

func (g *gatedBuilder) Build(context.Context, uint64, string) (domain.Market, error) {
	return domain.Market{}, errors.New("not used")
}

func (g *gatedBuilder) BuildAll(ctx context.Context, _ string) ([]domain.Market, error) {
	g.mu.Lock()
	gate := g.gates[g.calls]
	g.calls++
	g.mu.Unlock()
	select {
	case list := <-gate:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestMarketService_SupersededRefreshIsDropped(t *testing.T) {
	ctx := context.Background()
	g := &gatedBuilder{gates: []chan []domain.Market{make(chan []domain.Market), make(chan []domain.Market)}}
	store := memory.NewMarketListStore(nil)
	ms := NewMarketService(g, store, nil, nil, nil, MarketServiceConfig{}, discardLogger())
	defer ms.Close()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = ms.Refresh(ctx, "first")
	}()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.calls == 1
	}, time.Second, 5*time.Millisecond)

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = ms.Refresh(ctx, "second")
	}()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.calls == 2
	}, time.Second, 5*time.Millisecond)

	// The newer refresh lands first, the older one must not overwrite it.
	g.gates[1] <- []domain.Market{{ID: 2, YesShares: big.NewInt(2)}}
	<-secondDone
	g.gates[0] <- []domain.Market{{ID: 1, YesShares: big.NewInt(1)}}
	<-firstDone

	cached, ok, err := store.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached.Data, 1)
	assert.Equal(t, uint64(2), cached.Data[0].ID)
}

func TestMarketService_BackgroundRefreshCoalesces(t *testing.T) {
	g := &gatedBuilder{gates: []chan []domain.Market{make(chan []domain.Market)}}
	ms := NewMarketService(g, memory.NewMarketListStore(nil), nil, nil, nil, MarketServiceConfig{}, discardLogger())

	assert.True(t, ms.RefreshInBackground("a"))
	assert.False(t, ms.RefreshInBackground("b"))

	g.gates[0] <- nil
	ms.Close()
	assert.False(t, ms.RefreshInBackground("after close"))
	assert.Equal(t, 1, g.calls)
}

func TestMarketService_Stale(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := memory.NewMarketListStore(func() time.Time { return now })
	ms := NewMarketService(&gatedBuilder{}, store, nil, nil, nil, MarketServiceConfig{TTL: time.Minute}, discardLogger())
	defer ms.Close()

	stale, err := ms.Stale(ctx)
	require.NoError(t, err)
	assert.True(t, stale, "missing cache is stale")

	require.NoError(t, store.Write(ctx, nil))
	stale, err = ms.Stale(ctx)
	require.NoError(t, err)
	assert.False(t, stale)

	ms.now = func() time.Time { return now.Add(2 * time.Minute) }
	stale, err = ms.Stale(ctx)
	require.NoError(t, err)
	assert.True(t, stale)
}

type historyRecorder struct {
	mu      sync.Mutex
	samples []domain.ShareSample
}

func (h *historyRecorder) Append(_ context.Context, s domain.ShareSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, s)
	return nil
}

func (h *historyRecorder) Recent(context.Context, uint64, int) ([]domain.ShareSample, error) {
	return nil, nil
}

func TestMarketService_RefreshRecordsShareHistory(t *testing.T) {
	f := chaintest.New()
	f.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 7, 3)
	h := &historyRecorder{}
	ms := NewMarketService(newListBuilder(f), memory.NewMarketListStore(nil), nil, h, nil, MarketServiceConfig{}, discardLogger())
	defer ms.Close()

	_, err := ms.Refresh(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, h.samples, 1)
	assert.Equal(t, uint64(1), h.samples[0].MarketID)
	assert.Equal(t, int64(7), h.samples[0].YesShares.Int64())
}

func TestMarketService_UnchangedSharesAreNotResampled(t *testing.T) {
	f := chaintest.New()
	id := f.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "A"}, future, 7, 3)
	h := &historyRecorder{}
	ms := NewMarketService(newListBuilder(f), memory.NewMarketListStore(nil), nil, h, nil, MarketServiceConfig{}, discardLogger())
	defer ms.Close()
	ctx := context.Background()

	for range 3 {
		_, err := ms.Refresh(ctx, "ttl")
		require.NoError(t, err)
	}
	require.Len(t, h.samples, 1)

	f.SetShares(id, 9, 3)
	_, err := ms.Refresh(ctx, "ttl")
	require.NoError(t, err)
	require.Len(t, h.samples, 2)
	assert.Equal(t, int64(9), h.samples[1].YesShares.Int64())
}
