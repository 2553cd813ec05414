package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "event_analytics"

// Metrics holds all Prometheus metrics for the analytics API.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	BytesTotal          prometheus.Counter
	AuthVerifications   *prometheus.CounterVec
	AuthVerifyDuration  prometheus.Histogram
	AuthActiveScanSize  prometheus.Gauge
	CacheRequests       *prometheus.CounterVec
	CacheState          prometheus.Gauge
	QueryDuration       *prometheus.HistogramVec
	RateLimitedRequests *prometheus.CounterVec
}

// New initializes the metrics and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of collected events by status.",
		}, []string{"status"}), // status: accepted, error_parse, error_validation, error_size, error_store, error_media_type
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of bytes collected.",
		}),
		AuthVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verifications_total",
			Help:      "Total number of API key verifications by outcome.",
		}, []string{"outcome"}), // outcome: ok, unauthorized, error
		AuthVerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verify_duration_seconds",
			Help:      "Time spent verifying an API key against active apps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		AuthActiveScanSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "active_scan_size",
			Help:      "Number of active apps compared during the most recent verification.",
		}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}), // result: hit, miss, error
		CacheState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "state",
			Help:      "Result cache connection state (0 unattempted, 1 connecting, 2 connected, 3 disabled).",
		}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Aggregation query latency by kind and cache result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "cached"}),
		RateLimitedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by limiter name.",
		}, []string{"limiter"}),
	}
}
