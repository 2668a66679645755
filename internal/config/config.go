// Package config defines the top-level configuration for the MetaMarket
// service and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by METAMARKET_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	AI       AIConfig       `toml:"ai"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Sync     SyncConfig     `toml:"sync"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the node endpoint and the two contract addresses.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	ChainID         int64    `toml:"chain_id"`
	MarketAddress   string   `toml:"market_address"`
	CampaignAddress string   `toml:"campaign_address"`
	CallTimeout     duration `toml:"call_timeout"`
	ReceiptPoll     duration `toml:"receipt_poll"`
}

// WalletConfig holds the credentials of the authorized account. Leaving both
// the key and the key file empty runs the service read-only.
type WalletConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
}

// AIConfig holds the OpenAI-compatible model endpoint used for proposal
// evaluation.
type AIConfig struct {
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Timeout     duration `toml:"timeout"`
	Temperature float64  `toml:"temperature"`
}

// RedisConfig holds Redis connection parameters. When disabled the in-memory
// stores are used, which only works for a single process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// PostgresConfig holds the connection parameters of the share history and
// audit database. DSN wins over the discrete fields when set.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"sslmode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage settings for market list
// archives.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
	Retain          int      `toml:"retain"`
}

// ServerConfig holds the HTTP/WebSocket API server configuration.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SyncConfig tunes the market list cache and the live subscriber.
type SyncConfig struct {
	// Profile scopes the cached list and preferences, like the browser
	// profile of a single-user dApp.
	Profile          string   `toml:"profile"`
	CacheTTL         duration `toml:"cache_ttl"`
	RevalidateAfter  duration `toml:"revalidate_after"`
	TTLCheckInterval duration `toml:"ttl_check_interval"`
	RefreshTimeout   duration `toml:"refresh_timeout"`
	Workers          int      `toml:"workers"`
	RetryInterval    duration `toml:"retry_interval"`
	HistoryRetention duration `toml:"history_retention"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible default values. Callers
// typically decode a TOML file on top of these defaults.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:      "http://127.0.0.1:8545",
			ChainID:     31337,
			CallTimeout: duration{30 * time.Second},
			ReceiptPoll: duration{time.Second},
		},
		AI: AIConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:       "gemini-2.0-flash",
			Timeout:     duration{60 * time.Second},
			Temperature: 0.2,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Namespace:  "metamarket",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "metamarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:          "us-east-1",
			Bucket:          "metamarket-archive",
			UseSSL:          true,
			ArchiveInterval: duration{time.Hour},
			Retain:          48,
		},
		Server: ServerConfig{
			Port:       8080,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved", "tx_failed"},
		},
		Sync: SyncConfig{
			Profile:          "default",
			CacheTTL:         duration{5 * time.Minute},
			RevalidateAfter:  duration{30 * time.Second},
			TTLCheckInterval: duration{30 * time.Second},
			RefreshTimeout:   duration{2 * time.Minute},
			Workers:          8,
			RetryInterval:    duration{5 * time.Second},
			HistoryRetention: duration{30 * 24 * time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted operating modes.
var validModes = map[string]bool{
	"serve": true,
	"sync":  true,
	"full":  true,
}

// validLogLevels enumerates the accepted log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for obvious mistakes and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sync, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	} else if u, err := url.Parse(c.Chain.RPCURL); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Sprintf("chain: rpc_url %q is not a valid url", c.Chain.RPCURL))
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.MarketAddress == "" {
		errs = append(errs, "chain: market_address must not be empty")
	} else if !common.IsHexAddress(c.Chain.MarketAddress) {
		errs = append(errs, fmt.Sprintf("chain: market_address %q is not a hex address", c.Chain.MarketAddress))
	}
	if c.Chain.CampaignAddress != "" && !common.IsHexAddress(c.Chain.CampaignAddress) {
		errs = append(errs, fmt.Sprintf("chain: campaign_address %q is not a hex address", c.Chain.CampaignAddress))
	}
	if c.Chain.CallTimeout.Duration < 0 {
		errs = append(errs, "chain: call_timeout must not be negative")
	}

	// Wallet
	if c.Wallet.KeyFile != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when key_file is set")
	}

	// AI
	if c.AI.Model == "" {
		errs = append(errs, "ai: model must not be empty")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("ai: temperature must be in [0, 2], got %g", c.AI.Temperature))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be positive")
		}
		if c.S3.Retain < 0 {
			errs = append(errs, "s3: retain must be >= 0")
		}
	}

	// Server
	if c.Mode != "sync" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Notify
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	// Sync
	if c.Sync.Profile == "" {
		errs = append(errs, "sync: profile must not be empty")
	}
	if c.Sync.CacheTTL.Duration <= 0 {
		errs = append(errs, "sync: cache_ttl must be positive")
	}
	if c.Sync.TTLCheckInterval.Duration <= 0 {
		errs = append(errs, "sync: ttl_check_interval must be positive")
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, "sync: workers must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
