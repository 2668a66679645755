package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalatmosoft/MetaMarket/internal/cache/memory"
	"github.com/kunalatmosoft/MetaMarket/internal/chain/chaintest"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/live"
	"github.com/kunalatmosoft/MetaMarket/internal/service"
	"github.com/kunalatmosoft/MetaMarket/internal/snapshot"
)

type hubEnv struct {
	chain *chaintest.Fake
	bus   *memory.SignalBus
	sub   *live.Subscriber
	srv   *httptest.Server
}

// newHubEnv starts a hub over a warm list cache.
func newHubEnv(t *testing.T) *hubEnv { return startHub(t, true) }

// newColdHubEnv starts a hub with nothing cached, so the first list socket
// reads the chain.
func newColdHubEnv(t *testing.T) *hubEnv { return startHub(t, false) }

func startHub(t *testing.T, warm bool) *hubEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := chaintest.New()
	f.AddMarket(chaintest.Account, domain.MarketMetadata{Question: "Will it rain?", Category: "weather"},
		time.Now().Add(24*time.Hour), 1e18, 2e18)

	bus := memory.NewSignalBus()
	builder := snapshot.NewBuilder(f, f, 2, logger)
	markets := service.NewMarketService(builder, memory.NewMarketListStore(nil), bus, nil, nil,
		service.MarketServiceConfig{Viewer: chaintest.Account}, logger)
	t.Cleanup(markets.Close)
	if warm {
		// Nothing subscribes to the bus yet, so this refresh is not relayed.
		_, err := markets.Refresh(context.Background(), "warmup")
		require.NoError(t, err)
	}
	sub := live.NewSubscriber(f, builder, nil, nil, markets, nil, logger)

	hub := NewHub(bus, markets, sub, Config{Viewer: chaintest.Account}, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleListWS)
	mux.HandleFunc("GET /ws/markets/{id}", hub.HandleMarketWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &hubEnv{chain: f, bus: bus, sub: sub, srv: srv}
}

func (e *hubEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) domain.Update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var u domain.Update
	require.NoError(t, json.Unmarshal(data, &u))
	return u
}

func TestListSocketSnapshotThenBusUpdates(t *testing.T) {
	e := newHubEnv(t)
	conn := e.dial(t, "/ws")

	first := readUpdate(t, conn)
	assert.Equal(t, domain.UpdateList, first.Kind)
	assert.Equal(t, "snapshot", first.Reason)
	require.Len(t, first.Markets, 1)
	assert.Equal(t, "Will it rain?", first.Markets[0].Question)

	// The hub subscribes asynchronously; keep publishing until one lands.
	payload, err := json.Marshal(domain.Update{Kind: domain.UpdateList, Reason: "ttl"})
	require.NoError(t, err)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_ = e.bus.Publish(context.Background(), domain.ChannelMarkets, payload)
			}
		}
	}()

	next := readUpdate(t, conn)
	assert.Equal(t, domain.UpdateList, next.Kind)
	assert.Equal(t, "ttl", next.Reason)
	assert.Equal(t, 1, e.chain.Calls("MarketCount"), "a warm cache serves the snapshot without a chain read")
}

func TestListSocketColdCacheSendsSnapshotFirst(t *testing.T) {
	e := newColdHubEnv(t)
	conn := e.dial(t, "/ws")

	first := readUpdate(t, conn)
	assert.Equal(t, "snapshot", first.Reason)
	require.Len(t, first.Markets, 1)
	assert.Equal(t, 1, e.chain.Calls("MarketCount"))
}

func TestListSocketRefusedWhenListUnavailable(t *testing.T) {
	e := newColdHubEnv(t)
	e.chain.FailCount(errors.New("node down"))

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "failed to load markets", body["error"])
}

func TestMarketSocketStreamsBetsAndReleasesWatch(t *testing.T) {
	e := newHubEnv(t)
	conn := e.dial(t, "/ws/markets/1")

	first := readUpdate(t, conn)
	assert.Equal(t, domain.UpdateMarket, first.Kind)
	assert.Equal(t, "snapshot", first.Reason)
	require.NotNil(t, first.Market)
	assert.Equal(t, uint64(1), first.Market.ID)
	assert.Empty(t, first.Chart)
	assert.Equal(t, 1, e.chain.ActiveSubscriptions())

	e.chain.SetShares(1, 3e18, 2e18)
	e.chain.EmitBetPlaced(context.Background(), domain.BetPlacedEvent{MarketID: 1, Outcome: true})

	next := readUpdate(t, conn)
	assert.Equal(t, "bet_placed", next.Reason)
	require.NotNil(t, next.Point)
	assert.InDelta(t, 3.0, next.Point.Yes, 1e-9)
	assert.InDelta(t, 2.0, next.Point.No, 1e-9)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return e.chain.ActiveSubscriptions() == 0 && e.sub.Active() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMarketSocketRejectsBadRequests(t *testing.T) {
	e := newHubEnv(t)

	tests := []struct {
		path string
		want int
	}{
		{"/ws/markets/abc", http.StatusBadRequest},
		{"/ws/markets/42", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(e.srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, e.chain.ActiveSubscriptions())
}

func TestClientSubscriptionMatching(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelMarkets: true}}
	assert.True(t, c.isSubscribed(domain.ChannelMarkets))
	assert.False(t, c.isSubscribed(domain.MarketChannel(7)))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelMarketPattern}})
	assert.True(t, c.isSubscribed(domain.MarketChannel(7)))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelMarkets}})
	assert.False(t, c.isSubscribed(domain.ChannelMarkets))
}
