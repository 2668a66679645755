package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

var errNoCampaigns = errors.New("snapshot: crowdfunding contract not configured")

// BuildCampaign reads one campaign. Errors propagate to the caller.
func (b *Builder) BuildCampaign(ctx context.Context, id uint64) (domain.Campaign, error) {
	if b.campaigns == nil {
		return domain.Campaign{}, errNoCampaigns
	}
	c, err := b.campaigns.CampaignDetails(ctx, id)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("snapshot: campaign %d: %w", id, err)
	}
	return c, nil
}

// BuildAllCampaigns builds campaigns 1..count, omitting ids that fail.
func (b *Builder) BuildAllCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	if b.campaigns == nil {
		return nil, errNoCampaigns
	}
	count, err := b.campaigns.CampaignCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: campaign count: %w", err)
	}

	slots := make([]*domain.Campaign, count)
	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for id := uint64(1); id <= count; id++ {
		g.Go(func() error {
			c, err := b.BuildCampaign(ctx, id)
			if err != nil {
				b.logger.Warn("skipping campaign",
					slog.Uint64("campaign_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			slots[id-1] = &c
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: build campaigns: %w", err)
	}

	out := make([]domain.Campaign, 0, count)
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}
