package handler

import (
	"math/big"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// marketView is a market snapshot plus the values the UI derives from it.
// Wei amounts stay exact integers; the *Eth fields are decimal strings.
type marketView struct {
	domain.Market
	Status              domain.MarketStatus `json:"status"`
	YesPercentage       float64             `json:"yesPercentage"`
	NoPercentage        float64             `json:"noPercentage"`
	YesSharesEth        string              `json:"yesSharesEth"`
	NoSharesEth         string              `json:"noSharesEth"`
	TotalSharesEth      string              `json:"totalSharesEth"`
	InitialLiquidityEth string              `json:"initialLiquidityEth"`
	YesBetEth           string              `json:"yesBetEth"`
	NoBetEth            string              `json:"noBetEth"`
	IsCreator           bool                `json:"isCreator"`
	CanResolve          bool                `json:"canResolve"`
	CanClaim            bool                `json:"canClaim"`
}

func newMarketView(m domain.Market, viewer string, now time.Time) marketView {
	yesPct, noPct := derive.PercentageSplit(m.YesShares, m.NoShares)
	isCreator := m.IsCreator(viewer)
	return marketView{
		Market:              m,
		Status:              derive.StatusLabel(m.Resolved, m.Active),
		YesPercentage:       yesPct,
		NoPercentage:        noPct,
		YesSharesEth:        derive.FormatEther(m.YesShares),
		NoSharesEth:         derive.FormatEther(m.NoShares),
		TotalSharesEth:      derive.FormatEther(m.TotalShares()),
		InitialLiquidityEth: derive.FormatEther(m.InitialLiquidity),
		YesBetEth:           derive.FormatEther(m.Position.YesBet),
		NoBetEth:            derive.FormatEther(m.Position.NoBet),
		IsCreator:           isCreator,
		CanResolve:          derive.CanResolve(isCreator, m.Resolved, m.ResolutionDate, now),
		CanClaim:            m.Resolved && winningStake(m).Sign() > 0,
	}
}

func winningStake(m domain.Market) *big.Int {
	stake := m.Position.NoBet
	if m.Outcome {
		stake = m.Position.YesBet
	}
	if stake == nil {
		return new(big.Int)
	}
	return stake
}

func newMarketViews(markets []domain.Market, viewer string, now time.Time) []marketView {
	out := make([]marketView, len(markets))
	for i, m := range markets {
		out[i] = newMarketView(m, viewer, now)
	}
	return out
}

// campaignView is a campaign plus its derived status and progress.
type campaignView struct {
	domain.Campaign
	Status          domain.CampaignStatus `json:"status"`
	Progress        float64               `json:"progress"`
	GoalEth         string                `json:"goalEth"`
	AmountRaisedEth string                `json:"amountRaisedEth"`
}

func newCampaignView(c domain.Campaign, now time.Time) campaignView {
	return campaignView{
		Campaign:        c,
		Status:          derive.CampaignStatus(c, now),
		Progress:        derive.CampaignProgress(c.AmountRaised, c.Goal),
		GoalEth:         derive.FormatEther(c.Goal),
		AmountRaisedEth: derive.FormatEther(c.AmountRaised),
	}
}
