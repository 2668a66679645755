package chaintest

import (
	"context"
	"sync"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

type subscription struct {
	once   sync.Once
	cancel func()
	done   chan struct{}
	errc   chan error
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
		close(s.errc)
	})
}

func (s *subscription) Err() <-chan error { return s.errc }

type betSink struct {
	ch   chan<- domain.BetPlacedEvent
	done <-chan struct{}
}

type createdSink struct {
	ch   chan<- domain.MarketCreatedEvent
	done <-chan struct{}
}

// WatchBetPlaced implements domain.EventSource.
func (f *Fake) WatchBetPlaced(ctx context.Context, sink chan<- domain.BetPlacedEvent) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSeq++
	key := f.subSeq
	s := f.track(ctx, func() {
		f.mu.Lock()
		delete(f.betSinks, key)
		f.mu.Unlock()
	})
	f.betSinks[key] = betSink{ch: sink, done: s.done}
	return s, nil
}

// WatchMarketCreated implements domain.EventSource.
func (f *Fake) WatchMarketCreated(ctx context.Context, sink chan<- domain.MarketCreatedEvent) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSeq++
	key := f.subSeq
	s := f.track(ctx, func() {
		f.mu.Lock()
		delete(f.createdSinks, key)
		f.mu.Unlock()
	})
	f.createdSinks[key] = createdSink{ch: sink, done: s.done}
	return s, nil
}

// track must be called with f.mu held; remove acquires it itself later.
func (f *Fake) track(ctx context.Context, remove func()) *subscription {
	f.active.Add(1)
	s := &subscription{
		done: make(chan struct{}),
		errc: make(chan error, 1),
	}
	s.cancel = func() {
		remove()
		f.active.Add(-1)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()
	return s
}

// EmitBetPlaced delivers ev to every BetPlaced subscriber. It blocks until
// each subscriber received it or went away.
func (f *Fake) EmitBetPlaced(ctx context.Context, ev domain.BetPlacedEvent) {
	f.mu.Lock()
	sinks := make([]betSink, 0, len(f.betSinks))
	for _, s := range f.betSinks {
		sinks = append(sinks, s)
	}
	f.mu.Unlock()
	for _, s := range sinks {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return
		}
	}
}

// EmitMarketCreated delivers ev to every MarketCreated subscriber.
func (f *Fake) EmitMarketCreated(ctx context.Context, ev domain.MarketCreatedEvent) {
	f.mu.Lock()
	sinks := make([]createdSink, 0, len(f.createdSinks))
	for _, s := range f.createdSinks {
		sinks = append(sinks, s)
	}
	f.mu.Unlock()
	for _, s := range sinks {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return
		}
	}
}
