// Package chain adapts a JSON-RPC node to typed reads, writes and event
// subscriptions on the PredictionMarket and Crowdfunding contracts.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kunalatmosoft/MetaMarket/internal/crypto"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// Config describes the node connection and the contract addresses.
type Config struct {
	RPCURL          string
	ExpectedChainID int64
	MarketAddress   string
	CampaignAddress string
	// PrivateKey is the hex key of the authorized account. Empty means the
	// client is read-only and every write fails with domain.ErrNoSigner.
	PrivateKey  string
	CallTimeout time.Duration
	ReceiptPoll time.Duration
}

// Client is a connected handle bound to the configured account.
type Client struct {
	eth       *ethclient.Client
	chainID   *big.Int
	signer    *crypto.Signer
	Markets   *MarketContract
	Campaigns *CampaignContract
	logger    *slog.Logger
}

// Dial connects to the node, verifies the chain id and binds both contracts.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain: %w: rpc url not configured", domain.ErrNoProvider)
	}
	logger = logger.With(slog.String("component", "chain"))

	dialCtx := ctx
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}

	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: %w: dial: %v", domain.ErrNoProvider, err)
	}
	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: %w: chain id: %v", domain.ErrNoProvider, err)
	}
	if err := checkChainID(cfg.ExpectedChainID, chainID); err != nil {
		eth.Close()
		return nil, err
	}

	c := &Client{eth: eth, chainID: chainID, logger: logger}
	if cfg.PrivateKey != "" {
		c.signer, err = crypto.NewSigner(cfg.PrivateKey, chainID)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain: signer: %w", err)
		}
	}

	opts := Options{CallTimeout: cfg.CallTimeout, ReceiptPoll: cfg.ReceiptPoll, Logger: logger}
	var signer TxSigner
	if c.signer != nil {
		signer = c.signer
	}
	if cfg.MarketAddress != "" {
		addr, err := parseAddress(cfg.MarketAddress)
		if err != nil {
			eth.Close()
			return nil, err
		}
		c.Markets = NewMarketContract(addr, eth, signer, opts)
	}
	if cfg.CampaignAddress != "" {
		addr, err := parseAddress(cfg.CampaignAddress)
		if err != nil {
			eth.Close()
			return nil, err
		}
		c.Campaigns = NewCampaignContract(addr, eth, signer, opts)
	}

	logger.Info("connected",
		slog.String("chain_id", chainID.String()),
		slog.String("account", c.Account()),
		slog.String("market_contract", cfg.MarketAddress),
		slog.String("campaign_contract", cfg.CampaignAddress),
	)
	return c, nil
}

func checkChainID(expected int64, actual *big.Int) error {
	if expected == 0 {
		return nil
	}
	if !actual.IsInt64() || actual.Int64() != expected {
		got := int64(-1)
		if actual.IsInt64() {
			got = actual.Int64()
		}
		return &domain.WrongNetworkError{Expected: expected, Actual: got}
	}
	return nil
}

// ChainID returns the connected chain id.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Account returns the authorized account address, or "" when read-only.
func (c *Client) Account() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

// Ping checks that the node still answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return errors.Join(domain.ErrNoProvider, err)
	}
	return nil
}

// Close releases the node connection.
func (c *Client) Close() {
	c.eth.Close()
}

// IsAddress reports whether s is a hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}
