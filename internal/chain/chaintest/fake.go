// Package chaintest provides an in-memory stand-in for the market and
// crowdfunding contracts.
package chaintest

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/metadata"
)

// Account is the default authorized account of a Fake.
const Account = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

type market struct {
	creator string
	blob    []byte
	state   domain.MarketState
	yes, no *big.Int
}

// Fake implements the market and campaign reader, writer and event source
// interfaces in memory. Writes apply immediately and emit the matching event.
type Fake struct {
	mu        sync.Mutex
	markets   []*market
	campaigns []*domain.Campaign
	positions map[string]domain.UserPosition
	failures  map[string]error
	countErr  error
	writeErr  error
	txSeq     int
	calls     map[string]int
	account   string

	betSinks     map[int]betSink
	createdSinks map[int]createdSink
	subSeq       int
	active       atomic.Int32

	// Now is used as the resolution-date clock for ResolveMarket.
	Now func() time.Time
}

var (
	_ domain.MarketReader   = (*Fake)(nil)
	_ domain.MarketWriter   = (*Fake)(nil)
	_ domain.EventSource    = (*Fake)(nil)
	_ domain.CampaignReader = (*Fake)(nil)
	_ domain.CampaignWriter = (*Fake)(nil)
)

// New returns an empty Fake signing as Account.
func New() *Fake {
	return &Fake{
		positions:    map[string]domain.UserPosition{},
		failures:     map[string]error{},
		calls:        map[string]int{},
		account:      Account,
		betSinks:     map[int]betSink{},
		createdSinks: map[int]createdSink{},
		Now:          time.Now,
	}
}

// AddMarket registers a market and returns its id.
func (f *Fake) AddMarket(creator string, meta domain.MarketMetadata, resolution time.Time, yes, no int64) uint64 {
	blob, err := metadata.Encode(meta)
	if err != nil {
		panic(err)
	}
	return f.AddRawMarket(creator, blob, resolution, yes, no)
}

// AddRawMarket registers a market with an arbitrary metadata blob.
func (f *Fake) AddRawMarket(creator string, blob []byte, resolution time.Time, yes, no int64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, &market{
		creator: creator,
		blob:    blob,
		state: domain.MarketState{
			ResolutionDate:   resolution.UTC().Truncate(time.Second),
			InitialLiquidity: big.NewInt(1e18),
			Active:           true,
		},
		yes: big.NewInt(yes),
		no:  big.NewInt(no),
	})
	return uint64(len(f.markets))
}

// AddCampaign registers a campaign and returns its id.
func (f *Fake) AddCampaign(c domain.Campaign) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uint64(len(f.campaigns) + 1)
	if c.AmountRaised == nil {
		c.AmountRaised = new(big.Int)
	}
	f.campaigns = append(f.campaigns, &c)
	return c.ID
}

// SetShares overwrites a market's share totals without emitting an event.
func (f *Fake) SetShares(id uint64, yes, no int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.markets[id-1]
	m.yes, m.no = big.NewInt(yes), big.NewInt(no)
}

// SetPosition sets account's stake in market id.
func (f *Fake) SetPosition(id uint64, account string, yes, no int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[posKey(id, account)] = domain.UserPosition{YesBet: big.NewInt(yes), NoBet: big.NewInt(no)}
}

// FailOn makes method fail with err for id. Method names match the reader
// interface methods, e.g. "MarketMetadata".
func (f *Fake) FailOn(method string, id uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[failKey(method, id)] = err
}

// FailCount makes MarketCount and CampaignCount fail with err.
func (f *Fake) FailCount(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countErr = err
}

// FailWrites makes every write fail with err before broadcast.
func (f *Fake) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Calls returns how often method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// ActiveSubscriptions reports live event subscriptions.
func (f *Fake) ActiveSubscriptions() int { return int(f.active.Load()) }

func (f *Fake) enter(method string, id uint64) error {
	f.calls[method]++
	return f.failures[failKey(method, id)]
}

// MarketCount implements domain.MarketReader.
func (f *Fake) MarketCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["MarketCount"]++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return uint64(len(f.markets)), nil
}

// MarketMetadata implements domain.MarketReader.
func (f *Fake) MarketMetadata(_ context.Context, id uint64) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.lookup("MarketMetadata", id)
	if err != nil {
		return "", nil, err
	}
	return m.creator, append([]byte(nil), m.blob...), nil
}

// MarketStatus implements domain.MarketReader.
func (f *Fake) MarketStatus(_ context.Context, id uint64) (domain.MarketState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.lookup("MarketStatus", id)
	if err != nil {
		return domain.MarketState{}, err
	}
	st := m.state
	st.InitialLiquidity = new(big.Int).Set(m.state.InitialLiquidity)
	return st, nil
}

// MarketShares implements domain.MarketReader.
func (f *Fake) MarketShares(_ context.Context, id uint64) (*big.Int, *big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.lookup("MarketShares", id)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(m.yes), new(big.Int).Set(m.no), nil
}

// UserBets implements domain.MarketReader.
func (f *Fake) UserBets(_ context.Context, id uint64, account string) (domain.UserPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup("UserBets", id); err != nil {
		return domain.UserPosition{}, err
	}
	p, ok := f.positions[posKey(id, account)]
	if !ok {
		return domain.EmptyPosition(), nil
	}
	return domain.UserPosition{YesBet: new(big.Int).Set(p.YesBet), NoBet: new(big.Int).Set(p.NoBet)}, nil
}

func (f *Fake) lookup(method string, id uint64) (*market, error) {
	if err := f.enter(method, id); err != nil {
		return nil, err
	}
	if id == 0 || id > uint64(len(f.markets)) {
		return nil, &domain.ContractCallRevertedError{Reason: "Market does not exist"}
	}
	return f.markets[id-1], nil
}

// CampaignCount implements domain.CampaignReader.
func (f *Fake) CampaignCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CampaignCount"]++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return uint64(len(f.campaigns)), nil
}

// CampaignDetails implements domain.CampaignReader.
func (f *Fake) CampaignDetails(_ context.Context, id uint64) (domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CampaignDetails", id); err != nil {
		return domain.Campaign{}, err
	}
	if id == 0 || id > uint64(len(f.campaigns)) {
		return domain.Campaign{}, &domain.ContractCallRevertedError{Reason: "Campaign does not exist"}
	}
	c := *f.campaigns[id-1]
	c.AmountRaised = new(big.Int).Set(c.AmountRaised)
	return c, nil
}
