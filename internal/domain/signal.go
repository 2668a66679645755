package domain

import (
	"strconv"
	"time"
)

// ChannelMarkets carries full market list updates.
const ChannelMarkets = "ch:markets"

// ChannelMarketPattern matches every per-market channel.
const ChannelMarketPattern = "ch:market:*"

// MarketChannel returns the channel carrying updates for one market.
func MarketChannel(id uint64) string {
	return "ch:market:" + strconv.FormatUint(id, 10)
}

// UpdateKind distinguishes list and single-market updates.
type UpdateKind string

const (
	UpdateMarket UpdateKind = "market"
	UpdateList   UpdateKind = "list"
)

// Update is the payload published on the signal bus and pushed to
// WebSocket clients.
type Update struct {
	Kind    UpdateKind   `json:"kind"`
	Reason  string       `json:"reason,omitempty"`
	Market  *Market      `json:"market,omitempty"`
	Point   *ChartPoint  `json:"point,omitempty"`
	Chart   []ChartPoint `json:"chart,omitempty"`
	Markets []Market     `json:"markets,omitempty"`
	At      time.Time    `json:"at"`
}
