// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Fetch cycle metrics
	FetchCyclesTotal   *prometheus.CounterVec
	FetchCycleDuration prometheus.Histogram
	EntityFetchesTotal *prometheus.CounterVec
	SnapshotsWritten   prometheus.Counter
	MetricRowsWritten  prometheus.Counter

	// Provider metrics
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderErrors          *prometheus.CounterVec

	// Storage metrics
	StoreWriteRetries prometheus.Counter

	// API metrics
	APIRequestDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulFetch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "defi_parity"
	}

	return &Metrics{
		// Fetch cycle metrics
		FetchCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "cycles_total",
			Help:      "Total number of fetch cycles by status",
		}, []string{"status"}),
		FetchCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "cycle_duration_seconds",
			Help:      "Fetch cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		EntityFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "entity_fetches_total",
			Help:      "Total number of entity fetches by provider and status",
		}, []string{"provider", "status"}),
		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "snapshots_written_total",
			Help:      "Total number of snapshots written",
		}),
		MetricRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "metric_rows_written_total",
			Help:      "Total number of metric rows written",
		}),

		// Provider metrics
		ProviderRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Upstream provider request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total number of provider errors by provider",
		}, []string{"provider"}),

		// Storage metrics
		StoreWriteRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_retries_total",
			Help:      "Total number of retried store writes",
		}),

		// API metrics
		APIRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),

		// Health metrics
		LastSuccessfulFetch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last fetch cycle with zero failures",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a completed fetch cycle.
func RecordCycle(status string, duration time.Duration) {
	DefaultMetrics.FetchCyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.FetchCycleDuration.Observe(duration.Seconds())
	if status == "success" {
		DefaultMetrics.LastSuccessfulFetch.SetToCurrentTime()
	}
}

// RecordEntityFetch records one entity fetch attempt.
func RecordEntityFetch(provider, status string) {
	DefaultMetrics.EntityFetchesTotal.WithLabelValues(provider, status).Inc()
}

// RecordSnapshotWritten records a stored snapshot and its metric rows.
func RecordSnapshotWritten(metricRows int) {
	DefaultMetrics.SnapshotsWritten.Inc()
	DefaultMetrics.MetricRowsWritten.Add(float64(metricRows))
}

// RecordProviderRequest records an upstream request's latency and outcome.
func RecordProviderRequest(provider string, seconds float64, err error) {
	DefaultMetrics.ProviderRequestDuration.WithLabelValues(provider).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderErrors.WithLabelValues(provider).Inc()
	}
}

// RecordStoreRetry increments the retried store writes counter.
func RecordStoreRetry() {
	DefaultMetrics.StoreWriteRetries.Inc()
}

// RecordAPIRequest records an API request's latency by route and status.
func RecordAPIRequest(route, status string, seconds float64) {
	DefaultMetrics.APIRequestDuration.WithLabelValues(route, status).Observe(seconds)
}
