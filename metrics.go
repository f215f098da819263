package httr2

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// the policy layers around it. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	throttleWait *prometheus.HistogramVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheRevalidations *prometheus.CounterVec

	oauthExchanges *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_requests_total",
				Help: "Total number of HTTP requests performed",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httr2_request_duration_seconds",
				Help:    "Duration of logical perform calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "httr2_requests_in_flight",
				Help: "Number of perform calls currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		throttleWait: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httr2_throttle_wait_seconds",
				Help:    "Time spent waiting for a throttle token",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"realm"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_cache_hits_total",
				Help: "Total number of fresh cache hits served without network access",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "endpoint"},
		),
		cacheRevalidations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_cache_revalidations_total",
				Help: "Total number of conditional requests answered 304",
			},
			[]string{"method", "endpoint"},
		),
		oauthExchanges: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_oauth_exchanges_total",
				Help: "Total number of OAuth token events by kind (acquire, refresh, invalidate)",
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httr2_errors_total",
				Help: "Total number of terminal errors by type",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordThrottleWait observes time spent waiting on a realm's bucket.
func (mc *MetricsCollector) RecordThrottleWait(realm string, waited time.Duration) {
	if mc == nil {
		return
	}
	mc.throttleWait.WithLabelValues(realm).Observe(waited.Seconds())
}

// RecordCacheHit increments the fresh-hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments the miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheRevalidation increments the 304 counter.
func (mc *MetricsCollector) RecordCacheRevalidation(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheRevalidations.WithLabelValues(method, endpoint).Inc()
}

// RecordOAuthExchange counts a token event: "acquire", "refresh" or
// "invalidate".
func (mc *MetricsCollector) RecordOAuthExchange(kind string) {
	if mc == nil {
		return
	}
	mc.oauthExchanges.WithLabelValues(kind).Inc()
}

// RecordError counts a terminal error by taxonomy type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
