// Package metrics exposes Prometheus collectors for the recommendation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendationRequests counts served requests by operation and the stage that produced
	// the result.
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_recommendation_requests_total",
			Help: "Total recommendation requests by operation and provenance",
		},
		[]string{"operation", "provenance"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osusume_recommendation_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	FallbackStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_fallback_stage_skips_total",
			Help: "Times a fallback stage was skipped, by stage and reason",
		},
		[]string{"stage", "reason"}, // reason: "no_vector", "timeout", "unavailable", "error", "empty"
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osusume_cache_hits_total",
			Help: "Total recommendation cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osusume_cache_misses_total",
			Help: "Total recommendation cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osusume_cache_entries",
			Help: "Current number of cached recommendation results",
		},
	)

	VectorsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_vectors_computed_total",
			Help: "Vectors aggregated on demand or by precompute, by kind",
		},
		[]string{"kind"}, // "tag", "product", "user"
	)

	InteractionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_interactions_recorded_total",
			Help: "Total recorded user interactions by kind",
		},
		[]string{"kind"},
	)

	ProductsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_products_ingested_total",
			Help: "Products ingested by outcome",
		},
		[]string{"outcome"}, // "created", "failed"
	)

	CategoryReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusume_category_reloads_total",
			Help: "Category file reloads by outcome",
		},
		[]string{"outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osusume_api_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveRequest records one served recommendation request.
func ObserveRequest(operation, provenance string, start time.Time) {
	RecommendationRequests.WithLabelValues(operation, provenance).Inc()
	RecommendationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordSkip records a fallback stage that did not produce a result.
func RecordSkip(stage, reason string) {
	FallbackStages.WithLabelValues(stage, reason).Inc()
}

// RecordCacheLookup increments the hit or miss counter.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheHits.Inc()
		return
	}
	CacheMisses.Inc()
}
