package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates the Prometheus collectors exposed on /metrics.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheLookups     *prometheus.CounterVec
	storageDuration  *prometheus.HistogramVec
	levelDecisions   *prometheus.CounterVec
	loginsTotal      *prometheus.CounterVec
	syncAddedTotal   prometheus.Counter
	syncSkippedTotal prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	storageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storage_operation_duration_seconds",
		Help:    "Duration of object storage calls",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation", "outcome"})

	levelDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "level_request_decisions_total",
		Help: "Level request decisions by outcome",
	}, []string{"decision"})

	loginsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Login attempts by method and outcome",
	}, []string{"method", "outcome"})

	syncAdded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "video_sync_added_total",
		Help: "Videos registered by storage sync",
	})

	syncSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "video_sync_skipped_total",
		Help: "Storage objects skipped by sync because their name did not parse",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, storageDuration,
		levelDecisions, loginsTotal, syncAdded, syncSkipped, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheLookups:     cacheLookups,
		storageDuration:  storageDuration,
		levelDecisions:   levelDecisions,
		loginsTotal:      loginsTotal,
		syncAddedTotal:   syncAdded,
		syncSkippedTotal: syncSkipped,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup and its latency.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveStorage records an object storage call.
func (m *MetricsService) ObserveStorage(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.storageDuration.WithLabelValues(operation, outcome(err)).Observe(duration.Seconds())
}

// RecordLevelDecision counts an approve or reject.
func (m *MetricsService) RecordLevelDecision(decision string) {
	if m == nil {
		return
	}
	m.levelDecisions.WithLabelValues(decision).Inc()
}

// RecordLogin counts a login attempt.
func (m *MetricsService) RecordLogin(method string, err error) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(method, outcome(err)).Inc()
}

// RecordSync counts the outcome of a storage sync.
func (m *MetricsService) RecordSync(added, skipped int) {
	if m == nil {
		return
	}
	m.syncAddedTotal.Add(float64(added))
	m.syncSkippedTotal.Add(float64(skipped))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
