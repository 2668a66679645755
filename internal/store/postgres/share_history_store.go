package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// ShareHistoryStore implements domain.ShareHistoryStore. Share totals are
// uint256 on-chain and stored as NUMERIC(78,0).
type ShareHistoryStore struct {
	pool *pgxpool.Pool
}

var _ domain.ShareHistoryStore = (*ShareHistoryStore)(nil)

// NewShareHistoryStore creates a ShareHistoryStore.
func NewShareHistoryStore(pool *pgxpool.Pool) *ShareHistoryStore {
	return &ShareHistoryStore{pool: pool}
}

// Append records one sample. Samples identical to the market's latest one
// are skipped so a refresh without bets does not flatten the chart.
func (s *ShareHistoryStore) Append(ctx context.Context, sample domain.ShareSample) error {
	observed := sample.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	const query = `
		INSERT INTO share_history (market_id, yes_shares, no_shares, observed_at)
		SELECT $1::bigint, $2::numeric, $3::numeric, $4::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM (
				SELECT yes_shares, no_shares FROM share_history
				WHERE market_id = $1::bigint
				ORDER BY observed_at DESC, id DESC
				LIMIT 1
			) last
			WHERE last.yes_shares = $2::numeric AND last.no_shares = $3::numeric
		)`
	_, err := s.pool.Exec(ctx, query,
		int64(sample.MarketID), bigString(sample.YesShares), bigString(sample.NoShares), observed)
	if err != nil {
		return fmt.Errorf("postgres: append share sample for market %d: %w", sample.MarketID, err)
	}
	return nil
}

// Recent returns up to limit of the newest samples for marketID, oldest
// first.
func (s *ShareHistoryStore) Recent(ctx context.Context, marketID uint64, limit int) ([]domain.ShareSample, error) {
	if limit <= 0 {
		limit = domain.ChartCapacity
	}
	const query = `
		SELECT market_id, yes_shares::text, no_shares::text, observed_at FROM (
			SELECT id, market_id, yes_shares, no_shares, observed_at FROM share_history
			WHERE market_id = $1
			ORDER BY observed_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY observed_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, int64(marketID), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent shares for market %d: %w", marketID, err)
	}

	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ShareSample, error) {
		var (
			sample  domain.ShareSample
			id      int64
			yes, no string
		)
		if err := row.Scan(&id, &yes, &no, &sample.ObservedAt); err != nil {
			return sample, err
		}
		sample.MarketID = uint64(id)
		var ok bool
		if sample.YesShares, ok = new(big.Int).SetString(yes, 10); !ok {
			return sample, fmt.Errorf("bad yes_shares %q", yes)
		}
		if sample.NoShares, ok = new(big.Int).SetString(no, 10); !ok {
			return sample, fmt.Errorf("bad no_shares %q", no)
		}
		return sample, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan share samples: %w", err)
	}
	return samples, nil
}

// PruneBefore deletes samples observed before cutoff and returns how many
// were removed.
func (s *ShareHistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM share_history WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune share history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
