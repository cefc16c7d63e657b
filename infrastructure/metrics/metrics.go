// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequests counts outgoing API calls by endpoint and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokenradar",
		Name:      "upstream_requests_total",
		Help:      "Outgoing upstream API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// RetryAttempts counts retries beyond the first attempt.
	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tokenradar",
		Name:      "retry_attempts_total",
		Help:      "HTTP retry attempts beyond the first try.",
	})

	// RateLimitWaitSeconds accumulates time spent blocked on the request budget.
	RateLimitWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tokenradar",
		Name:      "rate_limit_wait_seconds_total",
		Help:      "Seconds spent waiting on the request budget.",
	})

	// CacheReads counts snapshot reads by store, dataset and result.
	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokenradar",
		Name:      "cache_reads_total",
		Help:      "Snapshot cache reads by store, dataset and result (hit/miss).",
	}, []string{"store", "dataset", "result"})

	// RecordsCollected counts records returned by collection runs.
	RecordsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokenradar",
		Name:      "records_collected_total",
		Help:      "Records accumulated by collection runs, per dataset.",
	}, []string{"dataset"})

	// RecordsScored counts records that passed through the scoring engine.
	RecordsScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tokenradar",
		Name:      "records_scored_total",
		Help:      "Records scored by the scoring engine.",
	})

	// SnapshotAgeSeconds reports the age of the last served snapshot.
	SnapshotAgeSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tokenradar",
		Name:      "snapshot_age_seconds",
		Help:      "Age of the most recently served snapshot, per dataset.",
	}, []string{"dataset"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
