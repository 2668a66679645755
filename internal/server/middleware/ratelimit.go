package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// writeShare is the fraction of the per-client budget available to
// transaction-submitting requests, which each cost the node a signed send.
const writeShare = 4

// RateLimit applies a per-client fixed-window limit backed by the shared
// limiter, so every API replica counts against the same budget. Reads get
// limit requests per window and writes a quarter of that (at least one).
// A nil limiter or a non-positive limit disables it. Limiter errors fail open.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	writeLimit := max(limit/writeShare, 1)
	retryAfter := strconv.Itoa(max(int(window/time.Second), 1))

	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class, budget := "api", limit
			if mutates(r.Method) {
				class, budget = "write", writeLimit
			}
			key := "ratelimit:" + class + ":" + extractClientIP(r)

			allowed, err := limiter.Allow(r.Context(), key, budget, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(budget))
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP returns the first valid address from X-Forwarded-For or
// X-Real-IP, falling back to the connection's remote host.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
