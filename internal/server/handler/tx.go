package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/service"
)

// TxService submits contract writes and waits for their receipts.
type TxService interface {
	Account() string
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (domain.TxReceipt, error)
	PlaceBet(ctx context.Context, req service.BetRequest) (domain.TxReceipt, error)
	ResolveMarket(ctx context.Context, id uint64, outcome bool) (domain.TxReceipt, error)
	ClaimPayout(ctx context.Context, id uint64) (domain.TxReceipt, error)
	CreateCampaign(ctx context.Context, req service.CreateCampaignRequest) (domain.TxReceipt, error)
	Contribute(ctx context.Context, id uint64, amount *big.Int) (domain.TxReceipt, error)
}

// defaultBetEth is the stake used when a bet request names no amount.
const defaultBetEth = "0.0001"

// TxHandler serves the transaction endpoints. Every write responds only
// after the transaction was mined.
type TxHandler struct {
	txs    TxService
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTxHandler creates a TxHandler. audit may be nil, in which case the
// transaction log is empty.
func NewTxHandler(txs TxService, audit domain.AuditStore, logger *slog.Logger) *TxHandler {
	return &TxHandler{txs: txs, audit: audit, logger: logHandler(logger, "tx")}
}

type createMarketRequest struct {
	Question         string `json:"question"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	ResolutionSource string `json:"resolutionSource"`
	ResolutionDate   string `json:"resolutionDate"`
	InitialLiquidity string `json:"initialLiquidity"`
}

type betRequest struct {
	Outcome *bool  `json:"outcome"`
	Amount  string `json:"amount"`
}

type resolveRequest struct {
	Outcome *bool `json:"outcome"`
}

type createCampaignRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Goal         string `json:"goal"`
	DurationDays int    `json:"durationDays"`
}

type contributeRequest struct {
	Amount string `json:"amount"`
}

// CreateMarket creates a market from the create form.
// POST /api/markets
func (h *TxHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolution, err := time.Parse(time.RFC3339, req.ResolutionDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resolutionDate must be an RFC 3339 timestamp")
		return
	}
	liquidity, err := derive.ParseEther(req.InitialLiquidity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "initialLiquidity must be an ETH amount")
		return
	}

	rcpt, err := h.txs.CreateMarket(r.Context(), service.CreateMarketRequest{
		Metadata: domain.MarketMetadata{
			Question:         req.Question,
			Description:      req.Description,
			Category:         req.Category,
			ResolutionSource: req.ResolutionSource,
		},
		ResolutionDate: resolution,
		Liquidity:      liquidity,
	})
	h.respond(w, r, rcpt, err, "failed to create market")
}

// PlaceBet stakes ETH on one side of a market.
// POST /api/markets/{id}/bets
func (h *TxHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req betRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}
	if strings.TrimSpace(req.Amount) == "" {
		req.Amount = defaultBetEth
	}
	amount, err := derive.ParseEther(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be an ETH amount")
		return
	}

	rcpt, err := h.txs.PlaceBet(r.Context(), service.BetRequest{MarketID: id, Outcome: *req.Outcome, Amount: amount})
	h.respond(w, r, rcpt, err, "failed to place bet")
}

// ResolveMarket settles a market. Only its creator may resolve it, after
// the resolution date.
// POST /api/markets/{id}/resolve
func (h *TxHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}

	rcpt, err := h.txs.ResolveMarket(r.Context(), id, *req.Outcome)
	h.respond(w, r, rcpt, err, "failed to resolve market")
}

// ClaimPayout withdraws the operator's winnings from a resolved market.
// POST /api/markets/{id}/claim
func (h *TxHandler) ClaimPayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rcpt, err := h.txs.ClaimPayout(r.Context(), id)
	h.respond(w, r, rcpt, err, "failed to claim payout")
}

// CreateCampaign opens a crowdfunding campaign.
// POST /api/campaigns
func (h *TxHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	goal, err := derive.ParseEther(req.Goal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "goal must be an ETH amount")
		return
	}

	rcpt, err := h.txs.CreateCampaign(r.Context(), service.CreateCampaignRequest{
		Title:        req.Title,
		Description:  req.Description,
		Goal:         goal,
		DurationDays: req.DurationDays,
	})
	h.respond(w, r, rcpt, err, "failed to create campaign")
}

// Contribute funds a campaign.
// POST /api/campaigns/{id}/contributions
func (h *TxHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req contributeRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := derive.ParseEther(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be an ETH amount")
		return
	}

	rcpt, err := h.txs.Contribute(r.Context(), id, amount)
	h.respond(w, r, rcpt, err, "failed to contribute")
}

// auditEntryView is one row of the transaction log.
type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ListTransactions returns the operator's submitted transactions, newest
// first.
// GET /api/transactions?limit=50&offset=0
func (h *TxHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	views := []auditEntryView{}
	if h.audit != nil {
		entries, err := h.audit.List(r.Context(), opts)
		if err != nil {
			writeDomainError(w, r, h.logger, err, "failed to list transactions")
			return
		}
		for _, e := range entries {
			views = append(views, auditEntryView(e))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":      h.txs.Account(),
		"transactions": views,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
	})
}

func (h *TxHandler) respond(w http.ResponseWriter, r *http.Request, rcpt domain.TxReceipt, err error, fallback string) {
	if err != nil {
		writeDomainError(w, r, h.logger, err, fallback)
		return
	}
	h.logger.InfoContext(r.Context(), "transaction confirmed",
		slog.String("path", r.URL.Path),
		slog.String("tx_hash", rcpt.TxHash),
		slog.Uint64("block", rcpt.BlockNumber),
	)
	writeJSON(w, http.StatusOK, rcpt)
}
