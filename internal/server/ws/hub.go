// Package ws pushes live market updates to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/live"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
	"github.com/kunalatmosoft/MetaMarket/internal/service"
)

// snapshotTimeout bounds the reads done before a socket is upgraded.
const snapshotTimeout = 30 * time.Second

// relayed are the signal bus channels fanned out to list sockets.
var relayed = []string{
	domain.ChannelMarkets,
	domain.ChannelMarketPattern,
}

// MarketSource serves the snapshots sent when a socket connects.
type MarketSource interface {
	Load(ctx context.Context) (service.MarketList, error)
	Get(ctx context.Context, id uint64, viewer string) (domain.Market, error)
}

// MarketWatcher opens a live watch on one market. live.Subscriber
// implements it.
type MarketWatcher interface {
	WatchMarket(ctx context.Context, id uint64, viewer string) (*live.MarketWatch, error)
}

// Config carries the viewer used for position reads and the allowed
// browser origins. No origins means any origin.
type Config struct {
	Viewer         string
	AllowedOrigins []string
}

// Hub tracks connected sockets. List sockets get updates relayed from the
// signal bus, so every replica's clients see every replica's refreshes.
// Market sockets each hold their own live watch for as long as they stay
// connected.
type Hub struct {
	bus      domain.SignalBus
	markets  MarketSource
	watcher  MarketWatcher
	cfg      Config
	origins  map[string]bool
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	stopped bool
}

// NewHub creates a hub. watcher may be nil, in which case market sockets
// are refused with 503.
func NewHub(bus domain.SignalBus, markets MarketSource, watcher MarketWatcher, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Hub {
	h := &Hub{
		bus:     bus,
		markets: markets,
		watcher: watcher,
		cfg:     cfg,
		origins: make(map[string]bool, len(cfg.AllowedOrigins)),
		metrics: metrics,
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]struct{}),
	}
	for _, o := range cfg.AllowedOrigins {
		h.origins[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin:       h.originAllowed,
	}
	return h
}

// Run relays bus updates until ctx ends, then disconnects every client and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range relayed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.relay(ctx, ch)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	h.mu.Lock()
	h.stopped = true
	n := len(h.clients)
	for c := range h.clients {
		delete(h.clients, c)
		c.shutdown()
		h.metrics.WSClientDelta(-1)
	}
	h.mu.Unlock()
	h.logger.Info("ws: hub stopped", slog.Int("disconnected", n))
	return ctx.Err()
}

// relay forwards one bus channel to the sockets subscribed to it. Messages
// from a pattern subscription are routed by the market id they carry.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	pattern := strings.HasSuffix(channel, "*")

	for data := range msgs {
		target := channel
		if pattern {
			var u domain.Update
			if err := json.Unmarshal(data, &u); err != nil || u.Market == nil {
				continue
			}
			target = domain.MarketChannel(u.Market.ID)
		}
		if dropped := h.fanout(target, data); dropped > 0 {
			h.logger.Warn("ws: slow clients skipped an update",
				slog.String("channel", target),
				slog.Int("dropped", dropped),
			)
		}
	}
	if ctx.Err() == nil {
		h.logger.Warn("ws: bus subscription ended", slog.String("channel", channel))
	}
}

// fanout queues data for every client subscribed to channel and returns how
// many had a full queue.
func (h *Hub) fanout(channel string, data []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for c := range h.clients {
		if c.isSubscribed(channel) && !c.offer(data) {
			dropped++
		}
	}
	return dropped
}

// attach registers c. It closes the connection and reports false once the
// hub has stopped.
func (h *Hub) attach(c *client) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		c.conn.Close()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.WSClientDelta(1)
	h.logger.Info("ws: client connected", slog.Int("clients", n))
	return true
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.shutdown()
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.WSClientDelta(-1)
		h.logger.Info("ws: client disconnected", slog.Int("clients", n))
	}
}

// HandleListWS serves GET /ws. The client receives the current market list,
// then every list update published on the bus. When no list can be loaded
// the upgrade is refused with 502 rather than sending an empty list.
func (h *Hub) HandleListWS(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	list, err := h.markets.Load(ctx)
	cancel()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ws: initial list unavailable",
			slog.String("error", err.Error()),
		)
		refuse(w, http.StatusBadGateway, "failed to load markets")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, domain.ChannelMarkets)
	c.offerUpdate(domain.Update{
		Kind:    domain.UpdateList,
		Reason:  "snapshot",
		Markets: list.Markets,
		At:      time.Now().UTC(),
	})
	if !h.attach(c) {
		return
	}
	go c.writeLoop()
	go c.readLoop(nil)
}

// HandleMarketWS serves GET /ws/markets/{id}. The client receives the
// market with its chart so far, then one update per bet.
func (h *Hub) HandleMarketWS(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		refuse(w, http.StatusBadRequest, "invalid market id")
		return
	}
	if h.watcher == nil {
		refuse(w, http.StatusServiceUnavailable, "live updates are not enabled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	m, err := h.markets.Get(ctx, id, h.cfg.Viewer)
	cancel()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		refuse(w, http.StatusNotFound, "market not found")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "ws: market snapshot failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		refuse(w, http.StatusBadGateway, "failed to read market")
		return
	}

	// Once hijacked the connection outlives r.Context(), so the watch is
	// bound to its own context and released by the read loop.
	watchCtx, stop := context.WithCancel(context.Background())
	watch, err := h.watcher.WatchMarket(watchCtx, id, h.cfg.Viewer)
	if err != nil {
		stop()
		h.logger.ErrorContext(r.Context(), "ws: watch market failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		refuse(w, http.StatusBadGateway, "failed to subscribe to market events")
		return
	}
	release := func() {
		stop()
		watch.Close()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		h.logger.WarnContext(r.Context(), "ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.offerUpdate(domain.Update{
		Kind:   domain.UpdateMarket,
		Reason: "snapshot",
		Market: &m,
		Chart:  watch.Chart(),
		At:     time.Now().UTC(),
	})
	if !h.attach(c) {
		release()
		return
	}
	go c.follow(watch)
	go c.writeLoop()
	go c.readLoop(release)
}

func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 || h.origins["*"] {
		return true
	}
	return h.origins[strings.ToLower(origin)]
}

// refuse answers a socket request that will not be upgraded.
func refuse(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
