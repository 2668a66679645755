package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer.
type MarketService interface {
	List(ctx context.Context, f derive.Filter, sortBy string) (service.MarketList, error)
	Get(ctx context.Context, id uint64, viewer string) (domain.Market, error)
	Viewer() string
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	now     func() time.Time
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		now:     time.Now,
		logger:  logHandler(logger, "markets"),
	}
}

// listMarketsResponse wraps the list endpoint output with cache metadata.
type listMarketsResponse struct {
	Markets        []marketView `json:"markets"`
	Count          int          `json:"count"`
	TotalVolumeEth string       `json:"totalVolumeEth"`
	Timestamp      time.Time    `json:"timestamp"`
	Cached         bool         `json:"cached"`
	Fresh          bool         `json:"fresh"`
}

var (
	validSorts    = map[string]bool{derive.SortNewest: true, derive.SortEndingSoon: true, derive.SortVolume: true}
	validStatuses = map[string]bool{"": true, derive.StatusAll: true, derive.StatusActive: true, derive.StatusResolved: true}
)

// ListMarkets returns the cached market list, filtered and sorted.
// GET /api/markets?search=rain&category=weather&status=active&sort=volume
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := derive.Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
	}
	if !validStatuses[f.Status] {
		writeError(w, http.StatusBadRequest, "status must be one of all, active, resolved")
		return
	}
	sortBy := q.Get("sort")
	if sortBy == "" {
		sortBy = derive.SortNewest
	}
	if !validSorts[sortBy] {
		writeError(w, http.StatusBadRequest, "sort must be one of newest, ending-soon, volume")
		return
	}

	list, err := h.markets.List(r.Context(), f, sortBy)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets:        newMarketViews(list.Markets, h.markets.Viewer(), h.now()),
		Count:          len(list.Markets),
		TotalVolumeEth: derive.FormatEther(derive.TotalVolume(list.Markets)),
		Timestamp:      list.Timestamp,
		Cached:         list.Cached,
		Fresh:          list.Fresh,
	})
}

// ListCategories returns the distinct categories of the cached list.
// GET /api/markets/categories
func (h *MarketHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.markets.List(r.Context(), derive.Filter{}, "")
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list categories")
		return
	}
	categories := derive.Categories(list.Markets)
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// GetMarket returns a fresh snapshot of one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	viewer := h.markets.Viewer()
	m, err := h.markets.Get(r.Context(), id, viewer)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, newMarketView(m, viewer, h.now()))
}
