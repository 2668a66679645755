package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// CampaignContract is the typed handle on the Crowdfunding contract.
type CampaignContract struct {
	c *boundContract
}

var (
	_ domain.CampaignReader = (*CampaignContract)(nil)
	_ domain.CampaignWriter = (*CampaignContract)(nil)
)

// NewCampaignContract binds the Crowdfunding ABI to address.
func NewCampaignContract(address common.Address, backend Backend, signer TxSigner, opts Options) *CampaignContract {
	return &CampaignContract{c: newBoundContract("Crowdfunding", address, CrowdfundingABI, backend, signer, opts)}
}

// CampaignCount returns the number of campaigns; ids run 1..count.
func (cc *CampaignContract) CampaignCount(ctx context.Context) (uint64, error) {
	out, err := cc.c.call(ctx, "campaignCount")
	if err != nil {
		return 0, err
	}
	return toUint64(out[0], "campaignCount")
}

// CampaignDetails reads one campaign.
func (cc *CampaignContract) CampaignDetails(ctx context.Context, id uint64) (domain.Campaign, error) {
	out, err := cc.c.call(ctx, "getCampaignDetails", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Campaign{}, err
	}

	camp := domain.Campaign{ID: id}
	creator, ok := out[0].(common.Address)
	if !ok {
		return domain.Campaign{}, fmt.Errorf("chain: getCampaignDetails creator: unexpected type %T", out[0])
	}
	camp.Creator = creator.Hex()
	if camp.Title, ok = out[1].(string); !ok {
		return domain.Campaign{}, fmt.Errorf("chain: getCampaignDetails title: unexpected type %T", out[1])
	}
	if camp.Description, ok = out[2].(string); !ok {
		return domain.Campaign{}, fmt.Errorf("chain: getCampaignDetails description: unexpected type %T", out[2])
	}
	if camp.Goal, err = toBig(out[3], "goal"); err != nil {
		return domain.Campaign{}, err
	}
	if camp.Deadline, err = toUnix(out[4], "deadline"); err != nil {
		return domain.Campaign{}, err
	}
	if camp.AmountRaised, err = toBig(out[5], "amountRaised"); err != nil {
		return domain.Campaign{}, err
	}
	if camp.Completed, err = toBool(out[6], "completed"); err != nil {
		return domain.Campaign{}, err
	}
	return camp, nil
}

// CreateCampaign opens a campaign running for duration, rounded down to
// whole seconds.
func (cc *CampaignContract) CreateCampaign(ctx context.Context, title, description string, goal *big.Int, duration time.Duration) (domain.PendingTx, error) {
	secs := big.NewInt(int64(duration / time.Second))
	return pending(cc.c.transact(ctx, "createCampaign", nil, title, description, goal, secs))
}

// Contribute sends amount to a campaign.
func (cc *CampaignContract) Contribute(ctx context.Context, id uint64, amount *big.Int) (domain.PendingTx, error) {
	return pending(cc.c.transact(ctx, "contribute", amount, new(big.Int).SetUint64(id)))
}
