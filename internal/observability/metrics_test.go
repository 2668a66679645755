package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test")
	m.CacheRead("stale")
	m.CacheRead("stale")
	m.Transaction("placeBet", "ok")
	m.ListRefreshed("ttl", "ok", 200*time.Millisecond)
	m.WatchOpened()
	m.WatchOpened()
	m.WatchClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheReads.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("placeBet", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWatches))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.CacheRead("miss")
	m.Evaluation("ok")
	m.WatchOpened()
	m.HTTPRequest("GET", 200, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("")
	m.Evaluation("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `metamarket_ai_evaluations_total{result="ok"} 1`)
}
