package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/kunalatmosoft/MetaMarket/internal/blob/s3"
	"github.com/kunalatmosoft/MetaMarket/internal/cache/memory"
	"github.com/kunalatmosoft/MetaMarket/internal/cache/redis"
	"github.com/kunalatmosoft/MetaMarket/internal/chain"
	"github.com/kunalatmosoft/MetaMarket/internal/config"
	"github.com/kunalatmosoft/MetaMarket/internal/crypto"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/notify"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
	"github.com/kunalatmosoft/MetaMarket/internal/server/handler"
	"github.com/kunalatmosoft/MetaMarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Chain
	Chain     *chain.Client
	Markets   *chain.MarketContract
	Campaigns *chain.CampaignContract
	Account   string

	// Caches
	ListStore   domain.MarketListStore
	Preferences domain.PreferenceStore
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Stores
	History    *postgres.ShareHistoryStore
	AuditStore domain.AuditStore

	// Blob storage
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	Metrics *observability.Metrics
	Checks  map[string]handler.Check
}

// CampaignReader returns the crowdfunding contract, or nil when none is
// configured.
func (d *Dependencies) CampaignReader() domain.CampaignReader {
	if d.Campaigns == nil {
		return nil
	}
	return d.Campaigns
}

// CampaignWriter returns the crowdfunding contract, or nil when none is
// configured.
func (d *Dependencies) CampaignWriter() domain.CampaignWriter {
	if d.Campaigns == nil {
		return nil
	}
	return d.Campaigns
}

// ShareHistory returns the share history store, or nil without Postgres.
func (d *Dependencies) ShareHistory() domain.ShareHistoryStore {
	if d.History == nil {
		return nil
	}
	return d.History
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: observability.NewMetrics("metamarket"),
		Checks:  make(map[string]handler.Check),
	}

	// --- Wallet ---
	keySrc := crypto.KeySource{
		PrivateKey: cfg.Wallet.PrivateKey,
		KeyFile:    cfg.Wallet.KeyFile,
		Password:   cfg.Wallet.KeyPassword,
	}
	var privateKey string
	if keySrc.Empty() {
		logger.WarnContext(ctx, "no wallet key configured, running read-only")
	} else {
		key, err := crypto.ResolveKey(keySrc)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		privateKey = key
	}

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL:          cfg.Chain.RPCURL,
		ExpectedChainID: cfg.Chain.ChainID,
		MarketAddress:   cfg.Chain.MarketAddress,
		CampaignAddress: cfg.Chain.CampaignAddress,
		PrivateKey:      privateKey,
		CallTimeout:     cfg.Chain.CallTimeout.Duration,
		ReceiptPoll:     cfg.Chain.ReceiptPoll.Duration,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient
	deps.Markets = chainClient.Markets
	deps.Campaigns = chainClient.Campaigns
	deps.Account = chainClient.Account()
	deps.Checks["chain"] = chainClient.Ping

	// --- Redis, or in-process caches for a single replica ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ListStore = redis.NewMarketListStore(redisClient, cfg.Sync.Profile)
		deps.Preferences = redis.NewPreferenceStore(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.InfoContext(ctx, "redis disabled, using in-memory caches")
		deps.ListStore = memory.NewMarketListStore(nil)
		deps.Preferences = memory.NewPreferenceStore()
		deps.SignalBus = memory.NewSignalBus()
		deps.LockManager = memory.NewLockManager()
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.History = pgClient.ShareHistory()
		deps.AuditStore = pgClient.Audit()
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- S3 market list archive ---
	if cfg.S3.Enabled {
		bucket, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(bucket, deps.ListStore, deps.AuditStore, cfg.S3.Retain, logger)
		deps.Checks["s3"] = bucket.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
