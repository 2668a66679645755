package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies METAMARKET_* environment variable overrides, and
// returns the final Config. A missing file is not an error so the service can
// be configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known METAMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "METAMARKET_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "METAMARKET_CHAIN_ID")
	setStr(&cfg.Chain.MarketAddress, "METAMARKET_CHAIN_MARKET_ADDRESS")
	setStr(&cfg.Chain.CampaignAddress, "METAMARKET_CHAIN_CAMPAIGN_ADDRESS")
	setDuration(&cfg.Chain.CallTimeout, "METAMARKET_CHAIN_CALL_TIMEOUT")
	setDuration(&cfg.Chain.ReceiptPoll, "METAMARKET_CHAIN_RECEIPT_POLL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "METAMARKET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyFile, "METAMARKET_WALLET_KEY_FILE")
	setStr(&cfg.Wallet.KeyPassword, "METAMARKET_WALLET_KEY_PASSWORD")

	// ── AI ──
	setStr(&cfg.AI.APIKey, "METAMARKET_AI_API_KEY")
	setStr(&cfg.AI.BaseURL, "METAMARKET_AI_BASE_URL")
	setStr(&cfg.AI.Model, "METAMARKET_AI_MODEL")
	setDuration(&cfg.AI.Timeout, "METAMARKET_AI_TIMEOUT")
	setFloat64(&cfg.AI.Temperature, "METAMARKET_AI_TEMPERATURE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "METAMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "METAMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "METAMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "METAMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "METAMARKET_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "METAMARKET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "METAMARKET_REDIS_NAMESPACE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "METAMARKET_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "METAMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "METAMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "METAMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "METAMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "METAMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "METAMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "METAMARKET_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "METAMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "METAMARKET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "METAMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "METAMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "METAMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "METAMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "METAMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "METAMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "METAMARKET_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "METAMARKET_S3_ARCHIVE_INTERVAL")
	setInt(&cfg.S3.Retain, "METAMARKET_S3_RETAIN")

	// ── Server ──
	setInt(&cfg.Server.Port, "METAMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "METAMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "METAMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "METAMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "METAMARKET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "METAMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "METAMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "METAMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "METAMARKET_NOTIFY_EVENTS")

	// ── Sync ──
	setStr(&cfg.Sync.Profile, "METAMARKET_SYNC_PROFILE")
	setDuration(&cfg.Sync.CacheTTL, "METAMARKET_SYNC_CACHE_TTL")
	setDuration(&cfg.Sync.RevalidateAfter, "METAMARKET_SYNC_REVALIDATE_AFTER")
	setDuration(&cfg.Sync.TTLCheckInterval, "METAMARKET_SYNC_TTL_CHECK_INTERVAL")
	setDuration(&cfg.Sync.RefreshTimeout, "METAMARKET_SYNC_REFRESH_TIMEOUT")
	setInt(&cfg.Sync.Workers, "METAMARKET_SYNC_WORKERS")

	// ── Top-level ──
	setStr(&cfg.Mode, "METAMARKET_MODE")
	setStr(&cfg.LogLevel, "METAMARKET_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
