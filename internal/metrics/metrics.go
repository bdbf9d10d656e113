// Package metrics exposes Prometheus collectors for the crawler and the query API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerOriginsTotal          *prometheus.CounterVec
	crawlerPersistFailuresTotal  prometheus.Counter
	crawlerBatchSize             prometheus.Histogram
	crawlerMode                  prometheus.Gauge
	crawlerInflightTasks         prometheus.Gauge
	crawlerRenderDurationSeconds prometheus.Histogram
	searchQueriesTotal           *prometheus.CounterVec
	searchQueryDurationSeconds   prometheus.Histogram
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerOriginsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_origins_total",
				Help: "Total number of crawl attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerPersistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_outcome_persist_failures_total",
				Help: "Total number of crawl outcomes that could not be written back to the frontier.",
			},
		)

		crawlerBatchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_batch_size",
				Help:    "Number of origins selected per scheduler iteration.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		)

		crawlerMode = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_mode",
				Help: "Current frontier mode: 0 first pass, 1 backlog.",
			},
		)

		crawlerInflightTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_inflight_tasks",
				Help: "Number of crawl tasks currently holding a throttle slot.",
			},
		)

		crawlerRenderDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_render_duration_seconds",
				Help:    "Histogram of page render latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total number of search queries, labeled by status.",
			},
			[]string{"status"},
		)

		searchQueryDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_query_duration_seconds",
				Help:    "Histogram of ranking engine latencies.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome increments the crawl outcome counter.
func ObserveOutcome(outcome string) {
	Init()
	crawlerOriginsTotal.WithLabelValues(outcome).Inc()
}

// ObservePersistFailure counts an outcome that could not be stored.
func ObservePersistFailure() {
	Init()
	crawlerPersistFailuresTotal.Inc()
}

// ObserveBatch records the size of a selected batch.
func ObserveBatch(size int) {
	Init()
	crawlerBatchSize.Observe(float64(size))
}

// SetBacklogMode flips the mode gauge.
func SetBacklogMode(backlog bool) {
	Init()
	if backlog {
		crawlerMode.Set(1)
		return
	}
	crawlerMode.Set(0)
}

// SetInflight records the number of held throttle slots.
func SetInflight(n int) {
	Init()
	crawlerInflightTasks.Set(float64(n))
}

// ObserveRender records the duration of a render call.
func ObserveRender(duration time.Duration) {
	Init()
	crawlerRenderDurationSeconds.Observe(duration.Seconds())
}

// ObserveQuery records one search query.
func ObserveQuery(status string, duration time.Duration) {
	Init()
	searchQueriesTotal.WithLabelValues(status).Inc()
	searchQueryDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
