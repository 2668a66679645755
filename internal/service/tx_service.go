package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/derive"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/metadata"
	"github.com/kunalatmosoft/MetaMarket/internal/notify"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MarketSource reads single markets fresh from the chain and schedules list
// rebuilds after writes.
type MarketSource interface {
	Get(ctx context.Context, id uint64, viewer string) (domain.Market, error)
	RefreshInBackground(reason string) bool
}

// CampaignSource reads single campaigns fresh from the chain.
type CampaignSource interface {
	Get(ctx context.Context, id uint64) (domain.Campaign, error)
}

// CreateMarketRequest holds the create-market form.
type CreateMarketRequest struct {
	Metadata       domain.MarketMetadata
	ResolutionDate time.Time
	Liquidity      *big.Int
}

// BetRequest holds a stake on one side of a market.
type BetRequest struct {
	MarketID uint64
	Outcome  bool
	Amount   *big.Int
}

// CreateCampaignRequest holds the create-campaign form.
type CreateCampaignRequest struct {
	Title        string
	Description  string
	Goal         *big.Int
	DurationDays int
}

// TxService submits contract writes as the operator account. Preconditions
// are checked against fresh reads; every write waits for its receipt.
type TxService struct {
	markets   domain.MarketWriter
	campaigns domain.CampaignWriter
	marketSrc MarketSource
	campSrc   CampaignSource
	audit     domain.AuditStore
	notifier  Notifier
	metrics   *observability.Metrics
	account   string
	now       func() time.Time
	logger    *slog.Logger
}

// NewTxService creates a TxService. campaigns, campSrc, audit, notifier and
// metrics may be nil.
func NewTxService(
	markets domain.MarketWriter,
	campaigns domain.CampaignWriter,
	marketSrc MarketSource,
	campSrc CampaignSource,
	audit domain.AuditStore,
	notifier Notifier,
	metrics *observability.Metrics,
	account string,
	logger *slog.Logger,
) *TxService {
	return &TxService{
		markets:   markets,
		campaigns: campaigns,
		marketSrc: marketSrc,
		campSrc:   campSrc,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		account:   account,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "tx_service")),
	}
}

// Account returns the operator account, or "" in read-only mode.
func (s *TxService) Account() string { return s.account }

// CreateMarket encodes the metadata and creates a market funded with the
// initial liquidity.
func (s *TxService) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.TxReceipt, error) {
	if err := s.writable(); err != nil {
		return domain.TxReceipt{}, err
	}
	req.Metadata.Question = strings.TrimSpace(req.Metadata.Question)
	switch {
	case req.Metadata.Question == "":
		return domain.TxReceipt{}, fmt.Errorf("tx_service: question is required: %w", domain.ErrInvalidInput)
	case !req.ResolutionDate.After(s.now()):
		return domain.TxReceipt{}, fmt.Errorf("tx_service: resolution date must be in the future: %w", domain.ErrInvalidInput)
	case req.Liquidity == nil || req.Liquidity.Sign() <= 0:
		return domain.TxReceipt{}, fmt.Errorf("tx_service: initial liquidity must be positive: %w", domain.ErrInvalidInput)
	}
	blob, err := metadata.Encode(req.Metadata)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: %w", err)
	}

	rcpt, err := s.submit(ctx, "createMarket", func() (domain.PendingTx, error) {
		return s.markets.CreateMarket(ctx, blob, req.ResolutionDate, req.Liquidity)
	}, map[string]any{
		"question":   req.Metadata.Question,
		"resolution": req.ResolutionDate.UTC().Format(time.RFC3339),
		"liquidity":  req.Liquidity.String(),
	})
	if err != nil {
		return rcpt, err
	}
	s.notify(ctx, notify.EventMarketCreated, "Market created", req.Metadata.Question)
	s.marketSrc.RefreshInBackground("create_market")
	return rcpt, nil
}

// PlaceBet stakes amount on one side of an active market. The stake must be
// at least derive.MinBet.
func (s *TxService) PlaceBet(ctx context.Context, req BetRequest) (domain.TxReceipt, error) {
	if err := s.writable(); err != nil {
		return domain.TxReceipt{}, err
	}
	if req.Amount == nil || req.Amount.Cmp(derive.MinBet) < 0 {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: minimum bet is %s ETH: %w",
			derive.FormatEther(derive.MinBet), domain.ErrInvalidInput)
	}
	m, err := s.marketSrc.Get(ctx, req.MarketID, s.account)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	if m.Resolved || !m.Active {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: market %d is not active: %w", req.MarketID, domain.ErrPrecondition)
	}

	return s.submit(ctx, "placeBet", func() (domain.PendingTx, error) {
		return s.markets.PlaceBet(ctx, req.MarketID, req.Outcome, req.Amount)
	}, map[string]any{
		"market_id": req.MarketID,
		"outcome":   req.Outcome,
		"amount":    req.Amount.String(),
	})
}

// ResolveMarket settles a market. Only the creator may resolve, once, after
// the resolution date.
func (s *TxService) ResolveMarket(ctx context.Context, id uint64, outcome bool) (domain.TxReceipt, error) {
	if err := s.writable(); err != nil {
		return domain.TxReceipt{}, err
	}
	m, err := s.marketSrc.Get(ctx, id, s.account)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	if !derive.CanResolve(m.IsCreator(s.account), m.Resolved, m.ResolutionDate, s.now()) {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: market %d cannot be resolved by %s: %w", id, s.account, domain.ErrPrecondition)
	}

	rcpt, err := s.submit(ctx, "resolveMarket", func() (domain.PendingTx, error) {
		return s.markets.ResolveMarket(ctx, id, outcome)
	}, map[string]any{
		"market_id": id,
		"outcome":   outcome,
	})
	if err != nil {
		return rcpt, err
	}
	result := "NO"
	if outcome {
		result = "YES"
	}
	s.notify(ctx, notify.EventMarketResolved, "Market resolved", fmt.Sprintf("%s resolved %s", m.Question, result))
	s.marketSrc.RefreshInBackground("resolve_market")
	return rcpt, nil
}

// ClaimPayout withdraws winnings from a resolved market.
func (s *TxService) ClaimPayout(ctx context.Context, id uint64) (domain.TxReceipt, error) {
	if err := s.writable(); err != nil {
		return domain.TxReceipt{}, err
	}
	m, err := s.marketSrc.Get(ctx, id, s.account)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	if !m.Resolved {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: market %d is not resolved: %w", id, domain.ErrPrecondition)
	}

	return s.submit(ctx, "claimPayout", func() (domain.PendingTx, error) {
		return s.markets.ClaimPayout(ctx, id)
	}, map[string]any{"market_id": id})
}

// CreateCampaign opens a crowdfunding campaign running for DurationDays.
func (s *TxService) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (domain.TxReceipt, error) {
	if err := s.campaignsWritable(); err != nil {
		return domain.TxReceipt{}, err
	}
	req.Title = strings.TrimSpace(req.Title)
	switch {
	case req.Title == "":
		return domain.TxReceipt{}, fmt.Errorf("tx_service: title is required: %w", domain.ErrInvalidInput)
	case req.Goal == nil || req.Goal.Sign() <= 0:
		return domain.TxReceipt{}, fmt.Errorf("tx_service: goal must be positive: %w", domain.ErrInvalidInput)
	case req.DurationDays <= 0:
		return domain.TxReceipt{}, fmt.Errorf("tx_service: duration must be at least one day: %w", domain.ErrInvalidInput)
	}
	duration := time.Duration(req.DurationDays) * 24 * time.Hour

	rcpt, err := s.submit(ctx, "createCampaign", func() (domain.PendingTx, error) {
		return s.campaigns.CreateCampaign(ctx, req.Title, req.Description, req.Goal, duration)
	}, map[string]any{
		"title":         req.Title,
		"goal":          req.Goal.String(),
		"duration_days": req.DurationDays,
	})
	if err != nil {
		return rcpt, err
	}
	s.notify(ctx, notify.EventCampaignCreated, "Campaign created", req.Title)
	return rcpt, nil
}

// Contribute funds a campaign that has neither expired nor completed.
func (s *TxService) Contribute(ctx context.Context, id uint64, amount *big.Int) (domain.TxReceipt, error) {
	if err := s.campaignsWritable(); err != nil {
		return domain.TxReceipt{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: contribution must be positive: %w", domain.ErrInvalidInput)
	}
	c, err := s.campSrc.Get(ctx, id)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	if derive.IsExpired(c.Deadline, c.Completed, s.now()) || c.Completed {
		return domain.TxReceipt{}, fmt.Errorf("tx_service: campaign %d is %s: %w",
			id, strings.ToLower(string(derive.CampaignStatus(c, s.now()))), domain.ErrPrecondition)
	}

	return s.submit(ctx, "contribute", func() (domain.PendingTx, error) {
		return s.campaigns.Contribute(ctx, id, amount)
	}, map[string]any{
		"campaign_id": id,
		"amount":      amount.String(),
	})
}

func (s *TxService) writable() error {
	if s.account == "" || s.markets == nil {
		return fmt.Errorf("tx_service: %w", domain.ErrNoSigner)
	}
	return nil
}

func (s *TxService) campaignsWritable() error {
	if err := s.writable(); err != nil {
		return err
	}
	if s.campaigns == nil || s.campSrc == nil {
		return fmt.Errorf("tx_service: crowdfunding contract not configured: %w", domain.ErrPrecondition)
	}
	return nil
}

// submit sends a write, waits for the receipt and records the outcome in the
// audit log.
func (s *TxService) submit(ctx context.Context, method string, send func() (domain.PendingTx, error), detail map[string]any) (domain.TxReceipt, error) {
	tx, err := send()
	if err != nil {
		return domain.TxReceipt{}, s.failed(ctx, method, "", err, detail)
	}

	s.logger.InfoContext(ctx, "tx_service: awaiting confirmation",
		slog.String("method", method),
		slog.String("tx_hash", tx.Hash()),
	)
	rcpt, err := tx.Wait(ctx)
	if err != nil {
		return rcpt, s.failed(ctx, method, tx.Hash(), err, detail)
	}

	s.metrics.Transaction(method, "ok")
	detail["tx_hash"] = rcpt.TxHash
	detail["block"] = rcpt.BlockNumber
	s.record(ctx, method, detail)
	s.logger.InfoContext(ctx, "tx_service: transaction confirmed",
		slog.String("method", method),
		slog.String("tx_hash", rcpt.TxHash),
		slog.Uint64("block", rcpt.BlockNumber),
	)
	return rcpt, nil
}

func (s *TxService) failed(ctx context.Context, method, hash string, err error, detail map[string]any) error {
	result := "error"
	switch {
	case errors.Is(err, domain.ErrTransactionRejected):
		result = "rejected"
	case errors.Is(err, domain.ErrContractReverted):
		result = "reverted"
	}
	s.metrics.Transaction(method, result)

	detail["error"] = err.Error()
	if hash != "" {
		detail["tx_hash"] = hash
	}
	s.record(ctx, method+"_failed", detail)
	s.logger.WarnContext(ctx, "tx_service: transaction failed",
		slog.String("method", method),
		slog.String("tx_hash", hash),
		slog.String("error", err.Error()),
	)
	s.notify(ctx, notify.EventTxFailed, "Transaction failed", fmt.Sprintf("%s: %s", method, err.Error()))
	return fmt.Errorf("tx_service: %s: %w", method, err)
}

func (s *TxService) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "tx_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TxService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "tx_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
