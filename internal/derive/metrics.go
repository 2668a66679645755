// Package derive holds the pure functions that turn raw contract quantities
// into presentation values: odds, status labels and action gating.
package derive

import (
	"math/big"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// PercentageSplit returns the yes/no share split in percent. An empty market
// reports (50, 50).
func PercentageSplit(yes, no *big.Int) (yesPct, noPct float64) {
	y, n := orZero(yes), orZero(no)
	total := new(big.Int).Add(y, n)
	if total.Sign() == 0 {
		return 50, 50
	}
	ratio, _ := new(big.Rat).SetFrac(y, total).Float64()
	yesPct = 100 * ratio
	return yesPct, 100 - yesPct
}

// CanResolve reports whether the viewer may resolve a market now: only its
// creator, only once, and only after the resolution date.
func CanResolve(isCreator, resolved bool, resolutionDate, now time.Time) bool {
	return isCreator && !resolved && !resolutionDate.After(now)
}

// IsExpired reports whether a campaign passed its deadline without
// completing.
func IsExpired(deadline time.Time, completed bool, now time.Time) bool {
	return deadline.Before(now) && !completed
}

// StatusLabel maps market flags to a label. Resolved wins over active.
func StatusLabel(resolved, active bool) domain.MarketStatus {
	switch {
	case resolved:
		return domain.MarketStatusResolved
	case active:
		return domain.MarketStatusActive
	default:
		return domain.MarketStatusInactive
	}
}

// CampaignStatus maps campaign state to a label. Completed wins over expired.
func CampaignStatus(c domain.Campaign, now time.Time) domain.CampaignStatus {
	switch {
	case c.Completed:
		return domain.CampaignStatusCompleted
	case IsExpired(c.Deadline, c.Completed, now):
		return domain.CampaignStatusExpired
	default:
		return domain.CampaignStatusActive
	}
}

// CampaignProgress returns raised/goal in percent. A zero goal reports 0.
// Over-funded campaigns report more than 100.
func CampaignProgress(raised, goal *big.Int) float64 {
	g := orZero(goal)
	if g.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(orZero(raised), g).Float64()
	return 100 * ratio
}

// TotalVolume sums yes and no shares over markets.
func TotalVolume(markets []domain.Market) *big.Int {
	total := new(big.Int)
	for _, m := range markets {
		total.Add(total, m.TotalShares())
	}
	return total
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
