// Package app runs MetaMarket: it wires the chain client, caches, stores and
// services from the configuration and starts the loops of the selected mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kunalatmosoft/MetaMarket/internal/config"
)

type modeFunc func(a *App, ctx context.Context, deps *Dependencies, svcs *services) error

var modes = map[string]modeFunc{
	ModeServe: (*App).ServeMode,
	ModeSync:  (*App).SyncMode,
	ModeFull:  (*App).FullMode,
}

// App owns everything Run creates and releases it in Close.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run blocks until ctx is cancelled or a loop of the configured mode fails.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	start, ok := modes[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	a.logger.InfoContext(ctx, "starting", slog.String("mode", mode))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.onClose(cleanup)

	svcs := a.buildServices(deps)
	a.onClose(svcs.markets.Close)

	return start(a, ctx, deps, svcs)
}

func (a *App) onClose(fn func()) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// Close releases resources in reverse order of creation. Later calls do
// nothing.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	if len(closers) == 0 {
		return
	}
	a.logger.Info("shutting down")
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
