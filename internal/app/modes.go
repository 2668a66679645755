package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kunalatmosoft/MetaMarket/internal/evaluate"
	"github.com/kunalatmosoft/MetaMarket/internal/live"
	"github.com/kunalatmosoft/MetaMarket/internal/server"
	"github.com/kunalatmosoft/MetaMarket/internal/server/handler"
	"github.com/kunalatmosoft/MetaMarket/internal/server/ws"
	"github.com/kunalatmosoft/MetaMarket/internal/service"
	"github.com/kunalatmosoft/MetaMarket/internal/snapshot"
)

// Operating modes.
const (
	ModeServe = "serve"
	ModeSync  = "sync"
	ModeFull  = "full"
)

// historyPruneInterval is how often expired share samples are deleted.
const historyPruneInterval = time.Hour

// services holds the application services shared by every mode.
type services struct {
	builder    *snapshot.Builder
	markets    *service.MarketService
	campaigns  *service.CampaignService
	tx         *service.TxService
	refresher  *live.Refresher
	subscriber *live.Subscriber
}

func (a *App) buildServices(deps *Dependencies) *services {
	builder := snapshot.NewBuilder(deps.Markets, deps.CampaignReader(), a.cfg.Sync.Workers, a.logger)
	markets := service.NewMarketService(
		builder, deps.ListStore, deps.SignalBus, deps.ShareHistory(), deps.Metrics,
		service.MarketServiceConfig{
			TTL:            a.cfg.Sync.CacheTTL.Duration,
			Revalidate:     a.cfg.Sync.RevalidateAfter.Duration,
			Viewer:         deps.Account,
			RefreshTimeout: a.cfg.Sync.RefreshTimeout.Duration,
		},
		a.logger,
	)
	campaigns := service.NewCampaignService(builder, a.logger)
	tx := service.NewTxService(
		deps.Markets, deps.CampaignWriter(), markets, campaigns,
		deps.AuditStore, deps.Notifier, deps.Metrics, deps.Account, a.logger,
	)
	refresher := live.NewRefresher(markets, deps.LockManager, a.cfg.Sync.RefreshTimeout.Duration, a.logger)
	subscriber := live.NewSubscriber(deps.Markets, builder, refresher, deps.ShareHistory(), markets, deps.Metrics, a.logger)

	return &services{
		builder:    builder,
		markets:    markets,
		campaigns:  campaigns,
		tx:         tx,
		refresher:  refresher,
		subscriber: subscriber,
	}
}

// ServeMode starts the HTTP and WebSocket API only. The cached list is
// rebuilt lazily when a request finds it stale; a separate sync process
// keeps it warm.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// SyncMode keeps the cached market list current without serving HTTP: the
// TTL refresher, the MarketCreated watch, the S3 archiver and the share
// history pruner.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSync(ctx, g, deps, svcs)
	return g.Wait()
}

// FullMode runs the sync workers and the API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSync(ctx, g, deps, svcs)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

func (a *App) startSync(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	g.Go(func() error {
		return svcs.refresher.RunTTL(ctx, a.cfg.Sync.TTLCheckInterval.Duration)
	})
	g.Go(func() error {
		return svcs.subscriber.RunListWatch(ctx, a.cfg.Sync.RetryInterval.Duration)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}
	if deps.History != nil && a.cfg.Sync.HistoryRetention.Duration > 0 {
		g.Go(func() error {
			return a.runHistoryPrune(ctx, deps)
		})
	}
}

// runArchiver exports the cached list to S3 every archive interval and
// prunes old archives.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.S3.ArchiveInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		path, err := deps.Archiver.Archive(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "archive failed", slog.String("error", err.Error()))
			continue
		}
		if path != "" {
			a.logger.InfoContext(ctx, "market list archived", slog.String("path", path))
		}
		if n, err := deps.Archiver.Prune(ctx); err != nil {
			a.logger.WarnContext(ctx, "archive prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.InfoContext(ctx, "old archives pruned", slog.Int("count", n))
		}
	}
}

func (a *App) runHistoryPrune(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-a.cfg.Sync.HistoryRetention.Duration)
		if n, err := deps.History.PruneBefore(ctx, cutoff); err != nil {
			if ctx.Err() == nil {
				a.logger.WarnContext(ctx, "share history prune failed", slog.String("error", err.Error()))
			}
		} else if n > 0 {
			a.logger.InfoContext(ctx, "share history pruned",
				slog.Int64("rows", n),
				slog.Time("before", cutoff),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// startHTTPServer adds the API server and the WebSocket hub to the given
// errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	var evaluator handler.Evaluator
	if a.cfg.AI.APIKey != "" {
		gw, err := evaluate.NewGateway(evaluate.Config{
			APIKey:      a.cfg.AI.APIKey,
			BaseURL:     a.cfg.AI.BaseURL,
			Model:       a.cfg.AI.Model,
			Timeout:     a.cfg.AI.Timeout.Duration,
			Temperature: float32(a.cfg.AI.Temperature),
		}, deps.Metrics, a.logger)
		if err != nil {
			a.logger.WarnContext(ctx, "HTTP server: evaluation disabled",
				slog.String("error", err.Error()),
			)
		} else {
			evaluator = gw
		}
	} else {
		a.logger.WarnContext(ctx, "HTTP server: ai.api_key not set, evaluation disabled")
	}

	hub := ws.NewHub(deps.SignalBus, svcs.markets, svcs.subscriber, ws.Config{
		Viewer:         deps.Account,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, deps.Metrics, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.Checks, a.logger),
		Markets:     handler.NewMarketHandler(svcs.markets, a.logger),
		Campaigns:   handler.NewCampaignHandler(svcs.campaigns, a.logger),
		Tx:          handler.NewTxHandler(svcs.tx, deps.AuditStore, a.logger),
		Evaluate:    handler.NewEvaluateHandler(evaluator, a.logger),
		Preferences: handler.NewPreferenceHandler(deps.Preferences, a.cfg.Sync.Profile, a.logger),
	}, hub, deps.RateLimiter, deps.Metrics, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
