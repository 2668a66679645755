package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// MarketContract is the typed handle on the PredictionMarket contract.
type MarketContract struct {
	c *boundContract
}

var (
	_ domain.MarketReader = (*MarketContract)(nil)
	_ domain.MarketWriter = (*MarketContract)(nil)
	_ domain.EventSource  = (*MarketContract)(nil)
)

// NewMarketContract binds the PredictionMarket ABI to address. signer may be
// nil for a read-only handle.
func NewMarketContract(address common.Address, backend Backend, signer TxSigner, opts Options) *MarketContract {
	return &MarketContract{c: newBoundContract("PredictionMarket", address, PredictionMarketABI, backend, signer, opts)}
}

// Address returns the contract address.
func (m *MarketContract) Address() common.Address { return m.c.address }

// MarketCount returns the number of markets; ids run 1..count.
func (m *MarketContract) MarketCount(ctx context.Context) (uint64, error) {
	out, err := m.c.call(ctx, "marketCount")
	if err != nil {
		return 0, err
	}
	return toUint64(out[0], "marketCount")
}

// MarketMetadata returns the creator and the raw metadata blob.
func (m *MarketContract) MarketMetadata(ctx context.Context, id uint64) (string, []byte, error) {
	out, err := m.c.call(ctx, "getMarketMetadata", new(big.Int).SetUint64(id))
	if err != nil {
		return "", nil, err
	}
	creator, ok := out[0].(common.Address)
	if !ok {
		return "", nil, fmt.Errorf("chain: getMarketMetadata creator: unexpected type %T", out[0])
	}
	blob, ok := out[1].([]byte)
	if !ok {
		return "", nil, fmt.Errorf("chain: getMarketMetadata metadata: unexpected type %T", out[1])
	}
	return creator.Hex(), blob, nil
}

// MarketStatus returns the status tuple of a market.
func (m *MarketContract) MarketStatus(ctx context.Context, id uint64) (domain.MarketState, error) {
	out, err := m.c.call(ctx, "getMarketStatus", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.MarketState{}, err
	}

	var st domain.MarketState
	if st.ResolutionDate, err = toUnix(out[0], "resolutionDate"); err != nil {
		return domain.MarketState{}, err
	}
	if st.InitialLiquidity, err = toBig(out[1], "initialLiquidity"); err != nil {
		return domain.MarketState{}, err
	}
	if st.Resolved, err = toBool(out[2], "resolved"); err != nil {
		return domain.MarketState{}, err
	}
	if st.Outcome, err = toBool(out[3], "outcome"); err != nil {
		return domain.MarketState{}, err
	}
	if st.Active, err = toBool(out[4], "active"); err != nil {
		return domain.MarketState{}, err
	}
	return st, nil
}

// MarketShares returns the yes and no share totals in wei.
func (m *MarketContract) MarketShares(ctx context.Context, id uint64) (*big.Int, *big.Int, error) {
	out, err := m.c.call(ctx, "getMarketShares", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, nil, err
	}
	yes, err := toBig(out[0], "yesShares")
	if err != nil {
		return nil, nil, err
	}
	no, err := toBig(out[1], "noShares")
	if err != nil {
		return nil, nil, err
	}
	return yes, no, nil
}

// UserBets returns account's stake in a market.
func (m *MarketContract) UserBets(ctx context.Context, id uint64, account string) (domain.UserPosition, error) {
	addr, err := parseAddress(account)
	if err != nil {
		return domain.UserPosition{}, err
	}
	out, err := m.c.call(ctx, "getUserBets", new(big.Int).SetUint64(id), addr)
	if err != nil {
		return domain.UserPosition{}, err
	}
	yes, err := toBig(out[0], "yesBet")
	if err != nil {
		return domain.UserPosition{}, err
	}
	no, err := toBig(out[1], "noBet")
	if err != nil {
		return domain.UserPosition{}, err
	}
	return domain.UserPosition{YesBet: yes, NoBet: no}, nil
}

// CreateMarket creates a market funded with liquidity.
func (m *MarketContract) CreateMarket(ctx context.Context, metadata []byte, resolution time.Time, liquidity *big.Int) (domain.PendingTx, error) {
	return pending(m.c.transact(ctx, "createMarket", liquidity, metadata, big.NewInt(resolution.Unix())))
}

// PlaceBet stakes amount on outcome.
func (m *MarketContract) PlaceBet(ctx context.Context, id uint64, outcome bool, amount *big.Int) (domain.PendingTx, error) {
	return pending(m.c.transact(ctx, "placeBet", amount, new(big.Int).SetUint64(id), outcome))
}

// ResolveMarket settles a market. The contract only accepts it from the
// creator after the resolution date.
func (m *MarketContract) ResolveMarket(ctx context.Context, id uint64, outcome bool) (domain.PendingTx, error) {
	return pending(m.c.transact(ctx, "resolveMarket", nil, new(big.Int).SetUint64(id), outcome))
}

// ClaimPayout withdraws the signer's winnings from a resolved market.
func (m *MarketContract) ClaimPayout(ctx context.Context, id uint64) (domain.PendingTx, error) {
	return pending(m.c.transact(ctx, "claimPayout", nil, new(big.Int).SetUint64(id)))
}
