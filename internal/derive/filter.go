package derive

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// Sort orders for market lists.
const (
	SortNewest     = "newest"
	SortEndingSoon = "ending-soon"
	SortVolume     = "volume"
)

// Status filters for market lists.
const (
	StatusAll      = "all"
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// Filter selects markets for a list view. Empty fields match everything.
type Filter struct {
	Search   string
	Category string
	Status   string
}

func (f Filter) match(m domain.Market) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(m.Question), strings.ToLower(f.Search)) {
		return false
	}
	if f.Category != "" && f.Category != "all" && m.Category != f.Category {
		return false
	}
	switch f.Status {
	case StatusActive:
		return m.Active && !m.Resolved
	case StatusResolved:
		return m.Resolved
	}
	return true
}

// Apply returns the markets matching f ordered by sortBy. The input slice is
// not modified. An unknown sort keeps id order.
func Apply(markets []domain.Market, f Filter, sortBy string) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if f.match(m) {
			out = append(out, m)
		}
	}

	switch sortBy {
	case SortNewest:
		slices.SortStableFunc(out, func(a, b domain.Market) int {
			return cmp.Compare(b.ID, a.ID)
		})
	case SortEndingSoon:
		slices.SortStableFunc(out, func(a, b domain.Market) int {
			return a.ResolutionDate.Compare(b.ResolutionDate)
		})
	case SortVolume:
		slices.SortStableFunc(out, func(a, b domain.Market) int {
			return b.TotalShares().Cmp(a.TotalShares())
		})
	}
	return out
}

// Categories returns the distinct non-empty categories in first-seen order.
func Categories(markets []domain.Market) []string {
	var out []string
	for _, m := range markets {
		if m.Category != "" && !slices.Contains(out, m.Category) {
			out = append(out, m.Category)
		}
	}
	return out
}
