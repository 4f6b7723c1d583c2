// Package metrics exposes Prometheus collectors for the cache subsystem.
// Recording functions are no-ops until Init is called, so library code can
// record unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for cache metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	hitsTotal         *prometheus.CounterVec
	missesTotal       *prometheus.CounterVec
	evictionsTotal    prometheus.Counter
	invalidatedTotal  *prometheus.CounterVec
	warmupKeysTotal   *prometheus.CounterVec
	slowOpsTotal      *prometheus.CounterVec
	rateLimitedTotal  *prometheus.CounterVec
	opDuration        *prometheus.HistogramVec
	fallbackActive    prometheus.Gauge
	storedKeys        prometheus.Gauge
	breakerState      *prometheus.GaugeVec
	breakerTripsTotal *prometheus.CounterVec
}

// Default histogram buckets for cache operation duration (in seconds).
var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

var promMetrics *PrometheusMetrics

// Init initializes the Prometheus metrics subsystem.
func Init(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"backend"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"backend"},
		),

		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Entries evicted from the bounded store",
			},
		),

		invalidatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidated_keys_total",
				Help:      "Keys removed by invalidation, labelled by mechanism",
			},
			[]string{"mechanism"},
		),

		warmupKeysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_warmup_keys_total",
				Help:      "Warmup outcomes per key",
			},
			[]string{"result"},
		),

		slowOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slow_operations_total",
				Help:      "Operations exceeding the slow-op threshold",
			},
			[]string{"operation"},
		),

		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_exceeded_total",
				Help:      "Calls rejected by the rate limiter",
			},
			[]string{"operation"},
		),

		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation duration",
				Buckets:   buckets,
			},
			[]string{"operation", "backend"},
		),

		fallbackActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_fallback_active",
				Help:      "1 when operations are routed to the bounded store",
			},
		),

		storedKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_stored_keys",
				Help:      "Keys currently held by the bounded store",
			},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Breaker state per feature (0=closed, 1=open, 2=half-open)",
			},
			[]string{"feature"},
		),

		breakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Times a breaker transitioned to open",
			},
			[]string{"feature"},
		),
	}

	registry.MustRegister(
		pm.hitsTotal, pm.missesTotal, pm.evictionsTotal, pm.invalidatedTotal,
		pm.warmupKeysTotal, pm.slowOpsTotal, pm.rateLimitedTotal,
		pm.opDuration, pm.fallbackActive, pm.storedKeys,
		pm.breakerState, pm.breakerTripsTotal,
	)

	promMetrics = pm
}

// Handler returns the Prometheus scrape handler, or nil before Init.
func Handler() http.Handler {
	if promMetrics == nil {
		return nil
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// RecordHit records a cache hit against the given backend ("redis"/"memory").
func RecordHit(backend string) {
	if promMetrics == nil {
		return
	}
	promMetrics.hitsTotal.WithLabelValues(backend).Inc()
}

// RecordMiss records a cache miss against the given backend.
func RecordMiss(backend string) {
	if promMetrics == nil {
		return
	}
	promMetrics.missesTotal.WithLabelValues(backend).Inc()
}

// RecordEviction records a bounded-store eviction.
func RecordEviction() {
	if promMetrics == nil {
		return
	}
	promMetrics.evictionsTotal.Inc()
}

// RecordInvalidated records keys removed by an invalidation mechanism
// ("tag", "pattern" or "event").
func RecordInvalidated(mechanism string, n int) {
	if promMetrics == nil || n <= 0 {
		return
	}
	promMetrics.invalidatedTotal.WithLabelValues(mechanism).Add(float64(n))
}

// RecordWarmup records warmup outcomes ("cached", "existing" or "error").
func RecordWarmup(result string, n int) {
	if promMetrics == nil || n <= 0 {
		return
	}
	promMetrics.warmupKeysTotal.WithLabelValues(result).Add(float64(n))
}

// RecordSlowOperation records an operation exceeding the slow-op threshold.
func RecordSlowOperation(operation string) {
	if promMetrics == nil {
		return
	}
	promMetrics.slowOpsTotal.WithLabelValues(operation).Inc()
}

// RecordRateLimited records a call rejected by the rate limiter.
func RecordRateLimited(operation string) {
	if promMetrics == nil {
		return
	}
	promMetrics.rateLimitedTotal.WithLabelValues(operation).Inc()
}

// ObserveOperation records the duration of a cache operation.
func ObserveOperation(operation, backend string, d time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.opDuration.WithLabelValues(operation, backend).Observe(d.Seconds())
}

// SetFallbackActive reflects whether operations route to the bounded store.
func SetFallbackActive(active bool) {
	if promMetrics == nil {
		return
	}
	if active {
		promMetrics.fallbackActive.Set(1)
	} else {
		promMetrics.fallbackActive.Set(0)
	}
}

// SetStoredKeys reflects the bounded store's current entry count.
func SetStoredKeys(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.storedKeys.Set(float64(n))
}

// SetBreakerState reflects a breaker's state for a feature.
func SetBreakerState(feature string, state int) {
	if promMetrics == nil {
		return
	}
	promMetrics.breakerState.WithLabelValues(feature).Set(float64(state))
}

// RecordBreakerTrip records a breaker transitioning to open.
func RecordBreakerTrip(feature string) {
	if promMetrics == nil {
		return
	}
	promMetrics.breakerTripsTotal.WithLabelValues(feature).Inc()
}
