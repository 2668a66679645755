// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Sync metrics
	SnapshotBuilds  *prometheus.CounterVec
	CacheReads      *prometheus.CounterVec
	ListRefreshes   *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	ChainEvents     *prometheus.CounterVec

	// Live metrics
	ActiveWatches prometheus.Gauge
	WSClients     prometheus.Gauge

	// Action metrics
	Transactions *prometheus.CounterVec
	Evaluations  *prometheus.CounterVec
	HTTPRequests *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "metamarket"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SnapshotBuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "builds_total",
			Help:      "Market snapshot builds by result",
		}, []string{"result"}),
		CacheReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Market list cache reads by outcome (fresh, stale, miss, error)",
		}, []string{"outcome"}),
		ListRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refreshes_total",
			Help:      "Market list rebuilds by trigger and result",
		}, []string{"reason", "result"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_duration_seconds",
			Help:      "Market list rebuild duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ChainEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "events_total",
			Help:      "Contract events received by name",
		}, []string{"event"}),

		ActiveWatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "active_watches",
			Help:      "Open live market and list watches",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),

		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submitted_total",
			Help:      "Contract transactions by method and result",
		}, []string{"method", "result"}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "evaluations_total",
			Help:      "AI evaluations by result",
		}, []string{"result"}),
		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SnapshotBuilt records a snapshot build result ("ok" or "error").
func (m *Metrics) SnapshotBuilt(result string) {
	if m != nil {
		m.SnapshotBuilds.WithLabelValues(result).Inc()
	}
}

// CacheRead records a list cache read outcome.
func (m *Metrics) CacheRead(outcome string) {
	if m != nil {
		m.CacheReads.WithLabelValues(outcome).Inc()
	}
}

// ListRefreshed records a list rebuild.
func (m *Metrics) ListRefreshed(reason, result string, took time.Duration) {
	if m != nil {
		m.ListRefreshes.WithLabelValues(reason, result).Inc()
		m.RefreshDuration.Observe(took.Seconds())
	}
}

// ChainEvent records a received contract event.
func (m *Metrics) ChainEvent(name string) {
	if m != nil {
		m.ChainEvents.WithLabelValues(name).Inc()
	}
}

// WatchOpened and WatchClosed track live watches.
func (m *Metrics) WatchOpened() {
	if m != nil {
		m.ActiveWatches.Inc()
	}
}

func (m *Metrics) WatchClosed() {
	if m != nil {
		m.ActiveWatches.Dec()
	}
}

// WSClientDelta adjusts the connected client gauge.
func (m *Metrics) WSClientDelta(d float64) {
	if m != nil {
		m.WSClients.Add(d)
	}
}

// Transaction records a write by method and result.
func (m *Metrics) Transaction(method, result string) {
	if m != nil {
		m.Transactions.WithLabelValues(method, result).Inc()
	}
}

// Evaluation records an AI evaluation result.
func (m *Metrics) Evaluation(result string) {
	if m != nil {
		m.Evaluations.WithLabelValues(result).Inc()
	}
}

// HTTPRequest observes one served request.
func (m *Metrics) HTTPRequest(method string, status int, took time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, http.StatusText(status)).Observe(took.Seconds())
	}
}
