package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

type countingLimiter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

func TestAuth(t *testing.T) {
	h := Auth("k")(ok())

	tests := []struct {
		name   string
		method string
		header map[string]string
		want   int
	}{
		{"get is public", http.MethodGet, nil, http.StatusOK},
		{"post without token", http.MethodPost, nil, http.StatusUnauthorized},
		{"post with wrong key", http.MethodPost, map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"post with api key", http.MethodPost, map[string]string{"X-API-Key": "k"}, http.StatusOK},
		{"put with bearer", http.MethodPut, map[string]string{"Authorization": "Bearer k"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/markets", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, serve(h, r).Code)
		})
	}

	t.Run("disabled", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/markets", nil)
		assert.Equal(t, http.StatusOK, serve(Auth("")(ok()), r).Code)
	})
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lim := &countingLimiter{}
	h := RateLimit(lim, 2, time.Minute, logger)(ok())

	req := func(ip string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
		r.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		return r
	}
	assert.Equal(t, http.StatusOK, serve(h, req("1.1.1.1")).Code)
	assert.Equal(t, http.StatusOK, serve(h, req("1.1.1.1")).Code)
	rec := serve(h, req("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusOK, serve(h, req("2.2.2.2")).Code)
	assert.Equal(t, 3, lim.hits["ratelimit:api:1.1.1.1"])

	t.Run("writes get a smaller budget", func(t *testing.T) {
		lim := &countingLimiter{}
		h := RateLimit(lim, 8, time.Minute, logger)(ok())
		post := func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/api/markets/1/bets", nil)
			r.RemoteAddr = "5.5.5.5:4321"
			return r
		}
		for range 2 {
			assert.Equal(t, http.StatusOK, serve(h, post()).Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, serve(h, post()).Code)
		assert.Equal(t, 3, lim.hits["ratelimit:write:5.5.5.5"])
	})

	t.Run("fails open", func(t *testing.T) {
		h := RateLimit(&countingLimiter{err: errors.New("redis down")}, 1, time.Minute, logger)(ok())
		assert.Equal(t, http.StatusOK, serve(h, req("3.3.3.3")).Code)
	})

	t.Run("disabled without limiter", func(t *testing.T) {
		h := RateLimit(nil, 1, time.Minute, logger)(ok())
		for range 3 {
			assert.Equal(t, http.StatusOK, serve(h, req("4.4.4.4")).Code)
		}
	})
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(ok())

	r := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Request-ID")

	r = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	r.Header.Set("Origin", "http://evil.example")
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, incoming)
	serve(h, r)
	assert.Equal(t, incoming, seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = serve(h, r)
	assert.NotEqual(t, "not-a-uuid", seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
