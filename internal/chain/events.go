package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// logSubscription forwards decoded logs until Unsubscribe, ctx cancellation
// or a node-side subscription error.
type logSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	errc   chan error
}

var _ domain.Subscription = (*logSubscription)(nil)

// Unsubscribe stops delivery and waits for the forwarding goroutine to exit.
// It is safe to call more than once.
func (s *logSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
	<-s.done
}

// Err delivers at most one subscription error and is closed once the
// subscription ends.
func (s *logSubscription) Err() <-chan error { return s.errc }

// WatchBetPlaced streams BetPlaced events for all markets into sink.
func (m *MarketContract) WatchBetPlaced(ctx context.Context, sink chan<- domain.BetPlacedEvent) (domain.Subscription, error) {
	return watchLogs(ctx, m.c, "BetPlaced", sink, func(l types.Log) (domain.BetPlacedEvent, bool) {
		fields, err := unpackLog(m.c.abi, "BetPlaced", l)
		if err != nil {
			m.c.logger.Warn("undecodable BetPlaced log", slog.String("tx", l.TxHash.Hex()), slog.String("error", err.Error()))
			return domain.BetPlacedEvent{}, false
		}
		ev := domain.BetPlacedEvent{TxHash: l.TxHash.Hex(), BlockNumber: l.BlockNumber}
		if ev.MarketID, err = toUint64(fields["marketId"], "marketId"); err != nil {
			m.c.logger.Warn("BetPlaced market id", slog.String("error", err.Error()))
			return domain.BetPlacedEvent{}, false
		}
		if addr, ok := fields["bettor"].(common.Address); ok {
			ev.Bettor = addr.Hex()
		}
		ev.Outcome, _ = fields["outcome"].(bool)
		ev.Amount, _ = fields["amount"].(*big.Int)
		return ev, true
	})
}

// WatchMarketCreated streams MarketCreated events into sink. A log that
// cannot be decoded is still delivered with a zero MarketID since consumers
// only need to know that the list changed.
func (m *MarketContract) WatchMarketCreated(ctx context.Context, sink chan<- domain.MarketCreatedEvent) (domain.Subscription, error) {
	return watchLogs(ctx, m.c, "MarketCreated", sink, func(l types.Log) (domain.MarketCreatedEvent, bool) {
		ev := domain.MarketCreatedEvent{TxHash: l.TxHash.Hex(), BlockNumber: l.BlockNumber}
		fields, err := unpackLog(m.c.abi, "MarketCreated", l)
		if err != nil {
			m.c.logger.Warn("undecodable MarketCreated log", slog.String("tx", l.TxHash.Hex()), slog.String("error", err.Error()))
			return ev, true
		}
		ev.MarketID, _ = toUint64(fields["marketId"], "marketId")
		if addr, ok := fields["creator"].(common.Address); ok {
			ev.Creator = addr.Hex()
		}
		return ev, true
	})
}

func watchLogs[T any](ctx context.Context, c *boundContract, event string, sink chan<- T, decode func(types.Log) (T, bool)) (domain.Subscription, error) {
	ev, ok := c.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("chain: unknown event %s", event)
	}

	ctx, cancel := context.WithCancel(ctx)
	logs := make(chan types.Log, 64)
	q := ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{ev.ID}},
	}
	sub, err := c.backend.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chain: subscribe %s: %w", event, err)
	}

	s := &logSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
		errc:   make(chan error, 1),
	}
	c.logger.Debug("subscribed", slog.String("event", event))

	go func() {
		defer close(s.done)
		defer close(s.errc)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					c.logger.Warn("event subscription failed", slog.String("event", event), slog.String("error", err.Error()))
					s.errc <- fmt.Errorf("chain: %s subscription: %w", event, err)
				}
				return
			case l := <-logs:
				if l.Removed {
					continue
				}
				out, ok := decode(l)
				if !ok {
					continue
				}
				select {
				case sink <- out:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return s, nil
}

// unpackLog decodes both the data and the indexed topics of a log.
func unpackLog(parsed abi.ABI, event string, l types.Log) (map[string]any, error) {
	ev := parsed.Events[event]
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a %s event", event)
	}

	out := make(map[string]any)
	if len(l.Data) > 0 {
		if err := parsed.UnpackIntoMap(out, event, l.Data); err != nil {
			return nil, err
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(out, indexed, l.Topics[1:]); err != nil {
		return nil, err
	}
	return out, nil
}
