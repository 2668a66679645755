package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// codeUserRejected is the EIP-1193 code an external signer returns when the
// user declines the request.
const codeUserRejected = 4001

// PendingTx is a broadcast transaction. Wait must be called before treating
// its effect as durable.
type PendingTx struct {
	hash     common.Hash
	method   string
	msg      ethereum.CallMsg
	contract *boundContract
}

var _ domain.PendingTx = (*PendingTx)(nil)

func pending(p *PendingTx, err error) (domain.PendingTx, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Hash returns the transaction hash in hex.
func (p *PendingTx) Hash() string { return p.hash.Hex() }

// Wait polls for the receipt until the transaction is mined or ctx ends. A
// failed receipt is reported as a *domain.ContractCallRevertedError carrying
// the revert reason when the node can replay it.
func (p *PendingTx) Wait(ctx context.Context) (domain.TxReceipt, error) {
	ticker := time.NewTicker(p.contract.opts.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := p.contract.backend.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil && receipt != nil:
			return p.finish(ctx, receipt)
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return domain.TxReceipt{}, fmt.Errorf("chain: %s receipt %s: %w", p.method, p.Hash(), err)
		}

		select {
		case <-ctx.Done():
			return domain.TxReceipt{}, fmt.Errorf("chain: %s wait %s: %w", p.method, p.Hash(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *PendingTx) finish(ctx context.Context, receipt *types.Receipt) (domain.TxReceipt, error) {
	out := domain.TxReceipt{
		TxHash:  p.Hash(),
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		p.contract.logger.Info("transaction confirmed",
			slog.String("method", p.method),
			slog.String("tx", out.TxHash),
			slog.Uint64("block", out.BlockNumber),
		)
		return out, nil
	}

	reason := p.replayRevert(ctx, receipt)
	p.contract.logger.Warn("transaction reverted",
		slog.String("method", p.method),
		slog.String("tx", out.TxHash),
		slog.String("reason", reason),
	)
	return out, &domain.ContractCallRevertedError{Reason: reason, TxHash: out.TxHash}
}

// replayRevert re-executes the call at the block it failed in to recover the
// revert reason. It returns "" when the node cannot tell.
func (p *PendingTx) replayRevert(ctx context.Context, receipt *types.Receipt) string {
	_, err := p.contract.backend.CallContract(ctx, p.msg, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	var reverted *domain.ContractCallRevertedError
	if errors.As(classifyWriteError(err), &reverted) {
		return reverted.Reason
	}
	return ""
}

// classifyWriteError maps node and signer errors of a write into the domain
// taxonomy: user rejection, insufficient funds or a contract revert. Anything
// else is returned unchanged.
func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return fmt.Errorf("%w: %v", domain.ErrTransactionRejected, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return fmt.Errorf("%w: %v", domain.ErrTransactionRejected, err)
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	}

	if reason, ok := revertReason(err); ok {
		return &domain.ContractCallRevertedError{Reason: reason}
	}
	return err
}

// classifyCallError surfaces reverts of read calls as typed errors and leaves
// transport failures alone.
func classifyCallError(err error) error {
	if reason, ok := revertReason(err); ok {
		return &domain.ContractCallRevertedError{Reason: reason}
	}
	return err
}

func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	const prefix = "execution reverted"
	msg := err.Error()
	idx := strings.Index(msg, prefix)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(prefix):], ":"))
	return reason, true
}
