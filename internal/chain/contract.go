package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// Backend is the subset of the node API the contracts need. *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// TxSigner signs transactions on behalf of the authorized account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Options tune a bound contract.
type Options struct {
	// CallTimeout bounds each read and each step of a write. Zero disables it.
	CallTimeout time.Duration
	// ReceiptPoll is the interval between receipt lookups while waiting for
	// a transaction to be mined.
	ReceiptPoll time.Duration
	// GasMarginPct is added on top of the node's gas estimate.
	GasMarginPct uint64
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReceiptPoll <= 0 {
		o.ReceiptPoll = time.Second
	}
	if o.GasMarginPct == 0 {
		o.GasMarginPct = 20
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// boundContract packs calls against one contract address and ABI.
type boundContract struct {
	name    string
	address common.Address
	abi     abi.ABI
	backend Backend
	signer  TxSigner
	opts    Options
	logger  *slog.Logger
}

func newBoundContract(name string, address common.Address, parsed abi.ABI, backend Backend, signer TxSigner, opts Options) *boundContract {
	opts = opts.withDefaults()
	return &boundContract{
		name:    name,
		address: address,
		abi:     parsed,
		backend: backend,
		signer:  signer,
		opts:    opts,
		logger:  opts.Logger.With(slog.String("component", "chain"), slog.String("contract", name)),
	}
}

func (c *boundContract) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// call performs a read-only call and returns the unpacked outputs.
func (c *boundContract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if c.signer != nil {
		msg.From = c.signer.Address()
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s.%s: %w", c.name, method, classifyCallError(err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: call %s.%s: empty result (no contract at %s?)", c.name, method, c.address.Hex())
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return values, nil
}

// transact signs and broadcasts a state-changing call. It returns once the
// node accepted the transaction.
func (c *boundContract) transact(ctx context.Context, method string, value *big.Int, args ...any) (*PendingTx, error) {
	if c.signer == nil {
		return nil, domain.ErrNoSigner
	}
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	from := c.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &c.address, Value: value, Data: input}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: %s nonce: %w", method, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: %s gas price: %w", method, err)
	}
	msg.GasPrice = gasPrice

	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("chain: %s estimate gas: %w", method, classifyWriteError(err))
	}
	gas += gas * c.opts.GasMarginPct / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &c.address,
		Value:    value,
		Data:     input,
	})
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: %w", method, classifyWriteError(err))
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: %s send: %w", method, classifyWriteError(err))
	}

	c.logger.Info("transaction sent",
		slog.String("method", method),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)

	msg.Gas = gas
	return &PendingTx{
		hash:     signed.Hash(),
		method:   method,
		msg:      msg,
		contract: c,
	}, nil
}

func toUint64(v any, field string) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: %s: unexpected type %T", field, v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("chain: %s: %s overflows uint64", field, n)
	}
	return n.Uint64(), nil
}

func toBig(v any, field string) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected type %T", field, v)
	}
	return n, nil
}

func toBool(v any, field string) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("chain: %s: unexpected type %T", field, v)
	}
	return b, nil
}

func toUnix(v any, field string) (time.Time, error) {
	secs, err := toUint64(v, field)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("chain: %q is not an address: %w", s, domain.ErrInvalidInput)
	}
	return common.HexToAddress(s), nil
}
