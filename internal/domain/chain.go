package domain

import (
	"context"
	"math/big"
	"time"
)

// MarketReader is the read surface of the PredictionMarket contract.
type MarketReader interface {
	MarketCount(ctx context.Context) (uint64, error)
	MarketMetadata(ctx context.Context, id uint64) (creator string, metadata []byte, err error)
	MarketStatus(ctx context.Context, id uint64) (MarketState, error)
	MarketShares(ctx context.Context, id uint64) (yes, no *big.Int, err error)
	UserBets(ctx context.Context, id uint64, account string) (UserPosition, error)
}

// MarketWriter is the state-changing surface of the PredictionMarket
// contract. Each call returns once the transaction is broadcast; callers must
// Wait on the PendingTx before treating the effect as durable.
type MarketWriter interface {
	CreateMarket(ctx context.Context, metadata []byte, resolution time.Time, liquidity *big.Int) (PendingTx, error)
	PlaceBet(ctx context.Context, id uint64, outcome bool, amount *big.Int) (PendingTx, error)
	ResolveMarket(ctx context.Context, id uint64, outcome bool) (PendingTx, error)
	ClaimPayout(ctx context.Context, id uint64) (PendingTx, error)
}

// CampaignReader is the read surface of the Crowdfunding contract.
type CampaignReader interface {
	CampaignCount(ctx context.Context) (uint64, error)
	CampaignDetails(ctx context.Context, id uint64) (Campaign, error)
}

// CampaignWriter is the state-changing surface of the Crowdfunding contract.
type CampaignWriter interface {
	CreateCampaign(ctx context.Context, title, description string, goal *big.Int, duration time.Duration) (PendingTx, error)
	Contribute(ctx context.Context, id uint64, amount *big.Int) (PendingTx, error)
}

// PendingTx is a broadcast transaction awaiting confirmation.
type PendingTx interface {
	Hash() string
	Wait(ctx context.Context) (TxReceipt, error)
}

// TxReceipt summarizes a mined, successful transaction.
type TxReceipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// BetPlacedEvent mirrors the contract's BetPlaced log.
type BetPlacedEvent struct {
	MarketID    uint64
	Bettor      string
	Outcome     bool
	Amount      *big.Int
	TxHash      string
	BlockNumber uint64
}

// MarketCreatedEvent mirrors the contract's MarketCreated log. MarketID is
// zero when the log could not be decoded.
type MarketCreatedEvent struct {
	MarketID    uint64
	Creator     string
	TxHash      string
	BlockNumber uint64
}

// Subscription is a live event subscription. Unsubscribe must be called to
// release it and is safe to call more than once.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// EventSource delivers contract events to the given sinks.
type EventSource interface {
	WatchBetPlaced(ctx context.Context, sink chan<- BetPlacedEvent) (Subscription, error)
	WatchMarketCreated(ctx context.Context, sink chan<- MarketCreatedEvent) (Subscription, error)
}
