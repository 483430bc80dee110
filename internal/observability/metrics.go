package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type engineMetrics struct {
	memorySearchDuration prometheus.Histogram
	memoryWriteDuration  prometheus.Histogram
	memoryEntriesTotal   prometheus.Gauge

	searchTotal *prometheus.CounterVec

	embeddingCacheTotal    *prometheus.CounterVec
	embeddingRequestTotal  *prometheus.CounterVec
	embeddingCallDuration  *prometheus.HistogramVec
	syncDuration           prometheus.Histogram
	syncFilesPruned        prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *engineMetrics
)

func getMetrics() *engineMetrics {
	metricsOnce.Do(func() {
		m := &engineMetrics{
			memorySearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_write_duration_seconds",
					Help:    "Memory index/sync duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryEntriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Total memory chunks indexed.",
				},
			),
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_total",
					Help: "Total searches by ranking mode.",
				},
				[]string{"mode"},
			),
			embeddingCacheTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_cache_total",
					Help: "Embedding cache lookups by outcome.",
				},
				[]string{"outcome"},
			),
			embeddingRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_request_total",
					Help: "Upstream embedding requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
			embeddingCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "embedding_request_duration_seconds",
					Help:    "Upstream embedding request duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			syncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_sync_duration_seconds",
					Help:    "Workspace sync duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			syncFilesPruned: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_sync_files_pruned_total",
					Help: "Total files pruned from the index during sync.",
				},
			),
		}

		prometheus.MustRegister(
			m.memorySearchDuration,
			m.memoryWriteDuration,
			m.memoryEntriesTotal,
			m.searchTotal,
			m.embeddingCacheTotal,
			m.embeddingRequestTotal,
			m.embeddingCallDuration,
			m.syncDuration,
			m.syncFilesPruned,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordMemorySearch(duration time.Duration) {
	getMetrics().memorySearchDuration.Observe(duration.Seconds())
}

func RecordMemoryWrite(duration time.Duration) {
	getMetrics().memoryWriteDuration.Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	getMetrics().memoryEntriesTotal.Set(float64(total))
}

func RecordSearchMode(mode string) {
	getMetrics().searchTotal.WithLabelValues(mode).Inc()
}

func RecordEmbeddingCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	getMetrics().embeddingCacheTotal.WithLabelValues(outcome).Inc()
}

func RecordEmbeddingRequest(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.embeddingRequestTotal.WithLabelValues(provider, status).Inc()
	m.embeddingCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordSync(duration time.Duration, filesPruned int) {
	m := getMetrics()
	m.syncDuration.Observe(duration.Seconds())
	m.syncFilesPruned.Add(float64(filesPruned))
}
