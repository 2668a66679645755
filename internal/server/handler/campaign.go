package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// CampaignService is the read side of the crowdfunding contract.
type CampaignService interface {
	List(ctx context.Context) ([]domain.Campaign, error)
	Get(ctx context.Context, id uint64) (domain.Campaign, error)
}

// CampaignHandler serves crowdfunding campaign endpoints.
type CampaignHandler struct {
	campaigns CampaignService
	now       func() time.Time
	logger    *slog.Logger
}

// NewCampaignHandler creates a CampaignHandler.
func NewCampaignHandler(campaigns CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		now:       time.Now,
		logger:    logHandler(logger, "campaigns"),
	}
}

// ListCampaigns returns every campaign with its status and progress.
// GET /api/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list campaigns")
		return
	}
	now := h.now()
	views := make([]campaignView, len(campaigns))
	for i, c := range campaigns {
		views[i] = newCampaignView(c, now)
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": views, "count": len(views)})
}

// GetCampaign returns one campaign.
// GET /api/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get campaign")
		return
	}
	writeJSON(w, http.StatusOK, newCampaignView(c, h.now()))
}
