package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// CampaignBuilder reads campaigns from the crowdfunding contract.
type CampaignBuilder interface {
	BuildCampaign(ctx context.Context, id uint64) (domain.Campaign, error)
	BuildAllCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

// CampaignService reads crowdfunding campaigns. Campaigns are always read
// fresh from the chain.
type CampaignService struct {
	builder CampaignBuilder
	logger  *slog.Logger
}

// NewCampaignService creates a CampaignService.
func NewCampaignService(builder CampaignBuilder, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		builder: builder,
		logger:  logger.With(slog.String("component", "campaign_service")),
	}
}

// List returns every campaign, ordered by id.
func (s *CampaignService) List(ctx context.Context) ([]domain.Campaign, error) {
	campaigns, err := s.builder.BuildAllCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign_service: list: %w", err)
	}
	return campaigns, nil
}

// Get returns one campaign. A campaign with the zero creator was never
// created and reports domain.ErrNotFound.
func (s *CampaignService) Get(ctx context.Context, id uint64) (domain.Campaign, error) {
	c, err := s.builder.BuildCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("campaign_service: get %d: %w", id, err)
	}
	if c.Creator == "" || strings.EqualFold(c.Creator, zeroAddress) {
		return domain.Campaign{}, fmt.Errorf("campaign_service: campaign %d: %w", id, domain.ErrNotFound)
	}
	return c, nil
}
