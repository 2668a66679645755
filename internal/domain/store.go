package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ShareSample is one observation of a market's share totals.
type ShareSample struct {
	MarketID   uint64
	YesShares  *big.Int
	NoShares   *big.Int
	ObservedAt time.Time
}

// ShareHistoryStore persists share observations so charts survive restarts.
type ShareHistoryStore interface {
	Append(ctx context.Context, sample ShareSample) error
	Recent(ctx context.Context, marketID uint64, limit int) ([]ShareSample, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only log of submitted transactions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
