// Package metrics exposes process-wide Prometheus collectors for backend
// fetch attempts, politeness pauses, cache size, and the HTTP API. Run-level
// progress metrics are exported separately by the progress sinks.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scholarFetchAttemptsTotal   *prometheus.CounterVec
	scholarFetchDurationSeconds *prometheus.HistogramVec
	scholarPauseSeconds         *prometheus.HistogramVec
	scholarCacheEntries         prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scholarFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_fetch_attempts_total",
				Help: "Total backend fetch attempts, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		scholarFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scholar_fetch_duration_seconds",
				Help:    "Histogram of single backend fetch latencies, labeled by backend.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		)

		scholarPauseSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scholar_pause_seconds",
				Help:    "Histogram of politeness pauses and rate limit waits, labeled by path.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"path"},
		)

		scholarCacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scholar_cache_entries",
				Help: "Number of entries in the citation cache after the last run.",
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

// SanitizePath reduces a proxy URL to a low cardinality label value.
// It extracts the hostname and lowercases it, so credentials and ports
// never leak into the metric stream.
func SanitizePath(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt records one backend attempt and its latency.
func ObserveFetchAttempt(backend, result string, duration time.Duration) {
	Init()
	scholarFetchAttemptsTotal.WithLabelValues(backend, result).Inc()
	scholarFetchDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObservePause records a politeness pause or rate limit wait for a path.
func ObservePause(path string, duration time.Duration) {
	Init()
	scholarPauseSeconds.WithLabelValues(path).Observe(duration.Seconds())
}

// SetCacheEntries records the cache size after a run.
func SetCacheEntries(n int) {
	Init()
	scholarCacheEntries.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
