package domain

import (
	"math/big"
	"strings"
	"time"
)

// MarketStatus is the presentation label of a market.
type MarketStatus string

const (
	MarketStatusResolved MarketStatus = "Resolved"
	MarketStatusActive   MarketStatus = "Active"
	MarketStatusInactive MarketStatus = "Inactive"
)

// MarketMetadata is the descriptive part of a market, stored on-chain as a
// JSON blob. It is immutable once the market is created.
type MarketMetadata struct {
	Question         string `json:"question"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	ResolutionSource string `json:"resolutionSource"`
}

// MarketState is the status tuple read from the contract.
type MarketState struct {
	ResolutionDate   time.Time
	InitialLiquidity *big.Int
	Resolved         bool
	Outcome          bool
	Active           bool
}

// UserPosition is a wallet's stake in one market, in wei.
type UserPosition struct {
	YesBet *big.Int `json:"yesBet"`
	NoBet  *big.Int `json:"noBet"`
}

// EmptyPosition returns a {0,0} position.
func EmptyPosition() UserPosition {
	return UserPosition{YesBet: new(big.Int), NoBet: new(big.Int)}
}

// Market is the denormalized snapshot of one prediction market assembled from
// several contract reads. Amounts are wei.
type Market struct {
	ID      uint64 `json:"id"`
	Creator string `json:"creator"`
	MarketMetadata
	ResolutionDate   time.Time    `json:"resolutionDate"`
	InitialLiquidity *big.Int     `json:"initialLiquidity"`
	Resolved         bool         `json:"resolved"`
	Outcome          bool         `json:"outcome"`
	YesShares        *big.Int     `json:"yesShares"`
	NoShares         *big.Int     `json:"noShares"`
	Active           bool         `json:"active"`
	Position         UserPosition `json:"userPosition"`
}

// IsCreator reports whether addr created the market. Addresses compare
// case-insensitively since checksummed and lowercase forms are both valid.
func (m Market) IsCreator(addr string) bool {
	return addr != "" && strings.EqualFold(m.Creator, addr)
}

// TotalShares returns yes+no shares in wei.
func (m Market) TotalShares() *big.Int {
	total := new(big.Int)
	if m.YesShares != nil {
		total.Add(total, m.YesShares)
	}
	if m.NoShares != nil {
		total.Add(total, m.NoShares)
	}
	return total
}
