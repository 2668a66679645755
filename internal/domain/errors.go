package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNoProvider          = errors.New("no wallet or rpc provider reachable")
	ErrWrongNetwork        = errors.New("wrong network")
	ErrNoSigner            = errors.New("no authorized account configured")
	ErrTransactionRejected = errors.New("transaction rejected by signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrContractReverted    = errors.New("contract call reverted")
	ErrMetadataDecode      = errors.New("metadata decode failed")
	ErrSnapshotFetch       = errors.New("snapshot fetch failed")
	ErrModelOutputParse    = errors.New("model output parse error")
	ErrUpstream            = errors.New("upstream error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrPrecondition        = errors.New("precondition failed")
)

// WrongNetworkError reports a chain id mismatch between the configured and
// the connected network.
type WrongNetworkError struct {
	Expected int64
	Actual   int64
}

func (e *WrongNetworkError) Error() string {
	return fmt.Sprintf("wrong network: expected chain id %d, connected to %d", e.Expected, e.Actual)
}

func (e *WrongNetworkError) Is(target error) bool { return target == ErrWrongNetwork }

// MetadataDecodeError wraps a failure to turn an on-chain metadata blob back
// into MarketMetadata.
type MetadataDecodeError struct {
	Err error
}

func (e *MetadataDecodeError) Error() string {
	return "metadata decode: " + e.Err.Error()
}

func (e *MetadataDecodeError) Unwrap() error { return e.Err }

func (e *MetadataDecodeError) Is(target error) bool { return target == ErrMetadataDecode }

// SnapshotFetchError is returned when one of the required reads for a market
// snapshot failed. The partial entity is discarded.
type SnapshotFetchError struct {
	MarketID uint64
	Err      error
}

func (e *SnapshotFetchError) Error() string {
	return fmt.Sprintf("snapshot fetch market %d: %v", e.MarketID, e.Err)
}

func (e *SnapshotFetchError) Unwrap() error { return e.Err }

func (e *SnapshotFetchError) Is(target error) bool { return target == ErrSnapshotFetch }

// ContractCallRevertedError carries the revert reason of a business-rule
// rejection from the contract (for example "Market is not active").
type ContractCallRevertedError struct {
	Reason string
	TxHash string
}

func (e *ContractCallRevertedError) Error() string {
	msg := "contract call reverted"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	return msg
}

func (e *ContractCallRevertedError) Is(target error) bool { return target == ErrContractReverted }

// ModelOutputParseError keeps the raw model text so it can be shown to the
// caller for diagnosis.
type ModelOutputParseError struct {
	Raw string
	Err error
}

func (e *ModelOutputParseError) Error() string {
	return "model output parse error: " + e.Err.Error()
}

func (e *ModelOutputParseError) Unwrap() error { return e.Err }

func (e *ModelOutputParseError) Is(target error) bool { return target == ErrModelOutputParse }

// UpstreamError wraps a transport or auth failure of the model provider.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
