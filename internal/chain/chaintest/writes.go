package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// Tx is the pending transaction returned by Fake writes. It is already
// mined, or carries the revert the contract would have produced.
type Tx struct {
	hash   string
	block  uint64
	revert error
}

// Hash implements domain.PendingTx.
func (t *Tx) Hash() string { return t.hash }

// Wait implements domain.PendingTx.
func (t *Tx) Wait(ctx context.Context) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	if t.revert != nil {
		return domain.TxReceipt{TxHash: t.hash, BlockNumber: t.block}, t.revert
	}
	return domain.TxReceipt{TxHash: t.hash, BlockNumber: t.block, GasUsed: 21000}, nil
}

// newTx must be called with f.mu held.
func (f *Fake) newTx(reason string) *Tx {
	f.txSeq++
	tx := &Tx{hash: fmt.Sprintf("0x%064x", f.txSeq), block: uint64(100 + f.txSeq)}
	if reason != "" {
		tx.revert = &domain.ContractCallRevertedError{Reason: reason, TxHash: tx.hash}
	}
	return tx
}

// CreateMarket implements domain.MarketWriter.
func (f *Fake) CreateMarket(ctx context.Context, blob []byte, resolution time.Time, liquidity *big.Int) (domain.PendingTx, error) {
	f.mu.Lock()
	f.calls["CreateMarket"]++
	if f.writeErr != nil {
		defer f.mu.Unlock()
		return nil, f.writeErr
	}
	f.markets = append(f.markets, &market{
		creator: f.account,
		blob:    append([]byte(nil), blob...),
		state: domain.MarketState{
			ResolutionDate:   resolution.UTC().Truncate(time.Second),
			InitialLiquidity: new(big.Int).Set(liquidity),
			Active:           true,
		},
		yes: new(big.Int),
		no:  new(big.Int),
	})
	id := uint64(len(f.markets))
	tx := f.newTx("")
	f.mu.Unlock()

	f.EmitMarketCreated(ctx, domain.MarketCreatedEvent{MarketID: id, Creator: f.account, TxHash: tx.hash})
	return tx, nil
}

// PlaceBet implements domain.MarketWriter.
func (f *Fake) PlaceBet(ctx context.Context, id uint64, outcome bool, amount *big.Int) (domain.PendingTx, error) {
	f.mu.Lock()
	f.calls["PlaceBet"]++
	if f.writeErr != nil {
		defer f.mu.Unlock()
		return nil, f.writeErr
	}
	if id == 0 || id > uint64(len(f.markets)) {
		defer f.mu.Unlock()
		return f.newTx("Market does not exist"), nil
	}
	m := f.markets[id-1]
	if !m.state.Active || m.state.Resolved {
		defer f.mu.Unlock()
		return f.newTx("Market is not active"), nil
	}

	key := posKey(id, f.account)
	pos, ok := f.positions[key]
	if !ok {
		pos = domain.EmptyPosition()
	}
	if outcome {
		m.yes = new(big.Int).Add(m.yes, amount)
		pos.YesBet = new(big.Int).Add(pos.YesBet, amount)
	} else {
		m.no = new(big.Int).Add(m.no, amount)
		pos.NoBet = new(big.Int).Add(pos.NoBet, amount)
	}
	f.positions[key] = pos
	tx := f.newTx("")
	f.mu.Unlock()

	f.EmitBetPlaced(ctx, domain.BetPlacedEvent{
		MarketID: id, Bettor: f.account, Outcome: outcome,
		Amount: new(big.Int).Set(amount), TxHash: tx.hash, BlockNumber: tx.block,
	})
	return tx, nil
}

// ResolveMarket implements domain.MarketWriter with the contract's creator
// and date checks.
func (f *Fake) ResolveMarket(_ context.Context, id uint64, outcome bool) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ResolveMarket"]++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if id == 0 || id > uint64(len(f.markets)) {
		return f.newTx("Market does not exist"), nil
	}
	m := f.markets[id-1]
	switch {
	case !strings.EqualFold(m.creator, f.account):
		return f.newTx("Only creator can resolve"), nil
	case m.state.Resolved:
		return f.newTx("Market already resolved"), nil
	case f.Now().Before(m.state.ResolutionDate):
		return f.newTx("Resolution date not reached"), nil
	}
	m.state.Resolved = true
	m.state.Outcome = outcome
	m.state.Active = false
	return f.newTx(""), nil
}

// ClaimPayout implements domain.MarketWriter.
func (f *Fake) ClaimPayout(_ context.Context, id uint64) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ClaimPayout"]++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if id == 0 || id > uint64(len(f.markets)) || !f.markets[id-1].state.Resolved {
		return f.newTx("Market not resolved"), nil
	}
	delete(f.positions, posKey(id, f.account))
	return f.newTx(""), nil
}

// CreateCampaign implements domain.CampaignWriter.
func (f *Fake) CreateCampaign(_ context.Context, title, description string, goal *big.Int, duration time.Duration) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateCampaign"]++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.campaigns = append(f.campaigns, &domain.Campaign{
		ID:           uint64(len(f.campaigns) + 1),
		Creator:      f.account,
		Title:        title,
		Description:  description,
		Goal:         new(big.Int).Set(goal),
		Deadline:     f.Now().Add(duration).UTC().Truncate(time.Second),
		AmountRaised: new(big.Int),
	})
	return f.newTx(""), nil
}

// Contribute implements domain.CampaignWriter.
func (f *Fake) Contribute(_ context.Context, id uint64, amount *big.Int) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Contribute"]++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if id == 0 || id > uint64(len(f.campaigns)) {
		return f.newTx("Campaign does not exist"), nil
	}
	c := f.campaigns[id-1]
	if c.Completed || f.Now().After(c.Deadline) {
		return f.newTx("Campaign has ended"), nil
	}
	c.AmountRaised = new(big.Int).Add(c.AmountRaised, amount)
	if c.AmountRaised.Cmp(c.Goal) >= 0 {
		c.Completed = true
	}
	return f.newTx(""), nil
}

func posKey(id uint64, account string) string {
	return fmt.Sprintf("%d/%s", id, strings.ToLower(account))
}

func failKey(method string, id uint64) string {
	return fmt.Sprintf("%s/%d", method, id)
}
