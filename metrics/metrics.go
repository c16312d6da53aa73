// Package metrics provides Prometheus metrics for the substitute service.
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Domain metrics cover the substitute cache, the matching engine and the audit log.
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substitute_cache_hits_total",
			Help: "Cache lookups that found a live entry",
		},
		[]string{"backend"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substitute_cache_misses_total",
			Help: "Cache lookups that found nothing or an expired entry",
		},
		[]string{"backend"},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substitute_cache_errors_total",
			Help: "Cache operations that failed",
		},
		[]string{"backend", "op"},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substitute_cache_evictions_total",
			Help: "Entries removed by expiry or invalidation",
		},
		[]string{"backend", "reason"},
	)

	SubstituteLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substitute_lookup_duration_seconds",
			Help:    "Latency of substitute lookups",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"cache"},
	)

	SubstituteMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substitute_matches_total",
			Help: "Substitutes returned by freshly computed lookups",
		},
		[]string{"match_type"},
	)

	AuditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salt_audit_entries_total",
			Help: "Audit entries appended",
		},
		[]string{"action", "result"},
	)

	BulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composition_bulk_items_total",
			Help: "Items processed by bulk composition operations",
		},
		[]string{"operation", "result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(CacheHits, CacheMisses, CacheErrors, CacheEvictions)
	prometheus.MustRegister(SubstituteLookupDuration, SubstituteMatches)
	prometheus.MustRegister(AuditEntriesTotal, BulkItemsTotal)
}
