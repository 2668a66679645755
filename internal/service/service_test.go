package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/chain/chaintest"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/snapshot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// env wires the services over an in-memory chain.
type env struct {
	chain    *chaintest.Fake
	builder  *snapshot.Builder
	markets  *MarketService
	camps    *CampaignService
	tx       *TxService
	audit    *memAudit
	notifier *recordingNotifier
}

func newEnv(t *testing.T, store domain.MarketListStore) *env {
	t.Helper()
	f := chaintest.New()
	b := snapshot.NewBuilder(f, f, 4, discardLogger())
	ms := NewMarketService(b, store, nil, nil, nil, MarketServiceConfig{Viewer: chaintest.Account}, discardLogger())
	t.Cleanup(ms.Close)
	cs := NewCampaignService(b, discardLogger())
	audit := &memAudit{}
	n := &recordingNotifier{}
	tx := NewTxService(f, f, ms, cs, audit, n, nil, chaintest.Account, discardLogger())
	return &env{chain: f, builder: b, markets: ms, camps: cs, tx: tx, audit: audit, notifier: n}
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{
		ID:        int64(len(a.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

func (a *memAudit) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Event
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newListBuilder(f *chaintest.Fake) *snapshot.Builder {
	return snapshot.NewBuilder(f, f, 4, discardLogger())
}
