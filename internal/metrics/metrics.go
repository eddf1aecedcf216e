// Package metrics exposes Prometheus collectors for spiders, runs and the web front end.
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
	pagesFetchedTotal          *prometheus.CounterVec
	bytesFetchedTotal          *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	itemsTotal                 *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	robotsFallbackTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidssmart_pages_fetched_total",
				Help: "Pages fetched, labeled by spider, backend and status code.",
			},
			[]string{"spider", "backend", "status"},
		)

		bytesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidssmart_bytes_fetched_total",
				Help: "Bytes fetched, labeled by spider.",
			},
			[]string{"spider"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kidssmart_fetch_duration_seconds",
				Help:    "Fetch latency, labeled by backend.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidssmart_items_total",
				Help: "Items processed by the pipeline, labeled by spider and outcome.",
			},
			[]string{"spider", "outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidssmart_runs_total",
				Help: "Spider runs finished, labeled by spider and status.",
			},
			[]string{"spider", "status"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kidssmart_run_duration_seconds",
				Help:    "Spider run duration, labeled by spider.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"spider"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kidssmart_active_workers",
				Help: "Number of workers currently executing a run.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kidssmart_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidssmart_robots_fallback_total",
				Help: "robots.txt probes that timed out and were treated as allow-all.",
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidssmart_http_requests_total",
				Help: "Web requests, labeled by method, route pattern and status code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kidssmart_http_request_duration_seconds",
				Help:    "Web request latency, labeled by method and route pattern.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// ObserveFetch records one page fetch. A zero status marks a transport failure.
func ObserveFetch(spider, backend string, status, bytesFetched int, duration time.Duration) {
	if pagesFetchedTotal == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	pagesFetchedTotal.WithLabelValues(label(spider), backend, code).Inc()
	if bytesFetched > 0 {
		bytesFetchedTotal.WithLabelValues(label(spider)).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveItem counts one pipeline outcome for a spider.
func ObserveItem(spider, outcome string) {
	if itemsTotal == nil {
		return
	}
	itemsTotal.WithLabelValues(label(spider), outcome).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(spider, status string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(label(spider), status).Inc()
	runDurationSeconds.WithLabelValues(label(spider)).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one web request against its route pattern.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback(domain string) {
	if robotsFallbackTotal == nil {
		return
	}
	robotsFallbackTotal.WithLabelValues(SanitizeSite(domain)).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
