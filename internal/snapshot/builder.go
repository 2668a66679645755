// Package snapshot assembles denormalized market and campaign entities from
// independent contract reads.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/metadata"
)

// DefaultWorkers bounds concurrent per-id builds in list builds.
const DefaultWorkers = 8

// Builder composes contract reads into snapshots.
type Builder struct {
	markets   domain.MarketReader
	campaigns domain.CampaignReader
	workers   int
	logger    *slog.Logger
}

// NewBuilder creates a Builder. campaigns may be nil when the crowdfunding
// contract is not configured.
func NewBuilder(markets domain.MarketReader, campaigns domain.CampaignReader, workers int, logger *slog.Logger) *Builder {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Builder{
		markets:   markets,
		campaigns: campaigns,
		workers:   workers,
		logger:    logger.With(slog.String("component", "snapshot")),
	}
}

// Build reads metadata, status and shares of market id concurrently and, when
// viewer is set, the viewer's position. A failed position read degrades to
// {0,0}; any other failure discards the whole snapshot.
func (b *Builder) Build(ctx context.Context, id uint64, viewer string) (domain.Market, error) {
	var (
		creator  string
		blob     []byte
		state    domain.MarketState
		yes, no  *big.Int
		position = domain.EmptyPosition()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		creator, blob, err = b.markets.MarketMetadata(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		state, err = b.markets.MarketStatus(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		yes, no, err = b.markets.MarketShares(gctx, id)
		return err
	})
	if viewer != "" {
		g.Go(func() error {
			p, err := b.markets.UserBets(gctx, id, viewer)
			if err != nil {
				b.logger.Warn("position read failed, using empty position",
					slog.Uint64("market_id", id),
					slog.String("viewer", viewer),
					slog.String("error", err.Error()),
				)
				return nil
			}
			position = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Market{}, b.fetchError(ctx, id, err)
	}

	meta, err := metadata.Decode(blob)
	if err != nil {
		return domain.Market{}, b.fetchError(ctx, id, err)
	}

	return domain.Market{
		ID:               id,
		Creator:          creator,
		MarketMetadata:   meta,
		ResolutionDate:   state.ResolutionDate,
		InitialLiquidity: state.InitialLiquidity,
		Resolved:         state.Resolved,
		Outcome:          state.Outcome,
		YesShares:        yes,
		NoShares:         no,
		Active:           state.Active,
		Position:         normalizePosition(position),
	}, nil
}

// BuildAll builds markets 1..count. Only the count read can fail the batch;
// a failing id is logged and left out. The result is ordered by id.
func (b *Builder) BuildAll(ctx context.Context, viewer string) ([]domain.Market, error) {
	count, err := b.markets.MarketCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: market count: %w", err)
	}

	slots := make([]*domain.Market, count)
	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for id := uint64(1); id <= count; id++ {
		g.Go(func() error {
			m, err := b.Build(ctx, id, viewer)
			if err != nil {
				b.logger.Warn("skipping market",
					slog.Uint64("market_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			slots[id-1] = &m
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: build all: %w", err)
	}

	out := make([]domain.Market, 0, count)
	for _, m := range slots {
		if m != nil {
			out = append(out, *m)
		}
	}
	if skipped := int(count) - len(out); skipped > 0 {
		b.logger.Info("market list built with omissions",
			slog.Int("built", len(out)),
			slog.Int("skipped", skipped),
		)
	}
	return out, nil
}

// fetchError classifies a failed build. Ids outside 1..count are reported
// as domain.ErrNotFound since the contract answers them with zero values or
// a revert rather than a distinct error.
func (b *Builder) fetchError(ctx context.Context, id uint64, err error) error {
	if id == 0 {
		return fmt.Errorf("snapshot: market 0: %w", domain.ErrNotFound)
	}
	if count, cerr := b.markets.MarketCount(ctx); cerr == nil && id > count {
		return fmt.Errorf("snapshot: market %d: %w", id, domain.ErrNotFound)
	}
	return &domain.SnapshotFetchError{MarketID: id, Err: err}
}

func normalizePosition(p domain.UserPosition) domain.UserPosition {
	if p.YesBet == nil {
		p.YesBet = new(big.Int)
	}
	if p.NoBet == nil {
		p.NoBet = new(big.Int)
	}
	return p
}
