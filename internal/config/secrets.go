package config

import (
	"net/url"
	"slices"
	"strings"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. Secrets become
// "***". URLs keep their scheme and host so the log still shows where the
// process connects: DSN and Redis URL passwords are masked, and RPC paths
// are dropped since hosted providers put the project key there.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)

	for _, s := range []*string{
		&out.Wallet.PrivateKey,
		&out.Wallet.KeyPassword,
		&out.AI.APIKey,
		&out.Redis.Password,
		&out.Postgres.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	out.Postgres.DSN = maskUserinfo(out.Postgres.DSN)
	out.Redis.Addr = maskUserinfo(out.Redis.Addr)
	out.Chain.RPCURL = hostOnly(out.Chain.RPCURL)
	return out
}

// maskUserinfo hides the password of a URL as url.URL.Redacted does.
// Plain host:port addresses pass through. Key=value DSNs, which may carry a
// password, are hidden entirely.
func maskUserinfo(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		if strings.Contains(raw, "password=") {
			return redacted
		}
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}

func hostOnly(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}
