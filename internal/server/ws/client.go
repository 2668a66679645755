package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/live"
)

const (
	writeTimeout = 10 * time.Second
	// readTimeout must exceed pingInterval so a healthy peer's pong always
	// lands before the read deadline.
	readTimeout  = 60 * time.Second
	pingInterval = 50 * time.Second
	maxInbound   = 4096
	queueSize    = 64
)

// subscribeMsg changes the channels a socket listens to:
//
//	{"action":"subscribe","channels":["ch:market:*"]}
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// client is one connected socket. Only writeLoop writes data frames.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	mu     sync.Mutex
	subs   map[string]bool
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, channels ...string) *client {
	c := &client{
		hub:  h,
		conn: conn,
		out:  make(chan []byte, queueSize),
		subs: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}
	return c
}

// offer queues data unless the queue is full or the client is gone.
func (c *client) offer(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *client) offerUpdate(u domain.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		c.hub.logger.Error("ws: encode update", slog.String("error", err.Error()))
		return
	}
	c.offer(data)
}

// shutdown closes the queue. writeLoop then sends a close frame and hangs up.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// follow turns each bet seen by the watch into a market update.
func (c *client) follow(watch *live.MarketWatch) {
	for u := range watch.Updates() {
		m, p := u.Market, u.Point
		c.offerUpdate(domain.Update{
			Kind:   domain.UpdateMarket,
			Reason: "bet_placed",
			Market: &m,
			Point:  &p,
			At:     p.Label,
		})
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

// isSubscribed reports whether channel matches one of the client's
// subscriptions. A subscription ending in "*" matches by prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[channel] {
		return true
	}
	for s := range c.subs {
		if prefix, ok := strings.CutSuffix(s, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// readLoop consumes subscription messages and pongs until the peer goes
// away, then detaches the client and runs release.
func (c *client) readLoop(release func()) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
		if release != nil {
			release()
		}
	}()

	c.conn.SetReadLimit(maxInbound)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug("ws: read ended", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(raw, &msg) == nil && msg.Action != "" {
			c.handleSubscription(msg)
		}
	}
}

// writeLoop drains the queue to the socket and pings the peer while idle.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.out:
			deadline := time.Now().Add(writeTimeout)
			if !ok {
				bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing")
				_ = c.conn.WriteControl(websocket.CloseMessage, bye, deadline)
				return
			}
			_ = c.conn.SetWriteDeadline(deadline)
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
