// Package redis implements the domain cache, preference, pub/sub, lock and
// rate-limit interfaces on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key and channel written by this package.
const DefaultNamespace = "metamarket"

// ClientConfig holds connection parameters for the Redis client. Addr may be
// host:port or a redis:// / rediss:// URL, in which case the URL's
// credentials and database win over the discrete fields.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Namespace  string
}

func (cfg ClientConfig) options() (*redis.Options, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}

	opts.ClientName = cfg.namespace()
	opts.DialTimeout = 5 * time.Second
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func (cfg ClientConfig) namespace() string {
	if cfg.Namespace == "" {
		return DefaultNamespace
	}
	return cfg.Namespace
}

// Client is a go-redis client plus the namespace every store shares.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New connects to Redis and fails unless the server answers a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb, ns: cfg.namespace()}, nil
}

// Ping is the health check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// key joins parts under the namespace: key("lock", "x") is "<ns>:lock:x".
func (c *Client) key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}
