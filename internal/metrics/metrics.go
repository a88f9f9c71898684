// Package metrics exposes Prometheus collectors for the collector service.
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
	schedulerCyclesTotal       *prometheus.CounterVec
	schedulerStepDuration      *prometheus.HistogramVec
	providerRequestsTotal      *prometheus.CounterVec
	contentStoreRequestsTotal  *prometheus.CounterVec
	fallbackAttempts           *prometheus.HistogramVec
	browserLeasesActive        prometheus.Gauge
	browserLaunchesTotal       prometheus.Counter
	browserLeaseWaitSeconds    prometheus.Histogram
	jobsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		schedulerCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_cycles_total",
				Help: "Collection cycles partitioned by outcome (completed, skipped, interrupted).",
			},
			[]string{"outcome"},
		)

		schedulerStepDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scheduler_step_duration_seconds",
				Help:    "Wall time per cycle step, labeled by step and outcome.",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
			},
			[]string{"step", "outcome"},
		)

		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "External search provider calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		contentStoreRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_store_requests_total",
				Help: "Content store API calls, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		fallbackAttempts = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fallback_attempts",
				Help:    "Provider calls issued per fallback search, labeled by engine and whether the target was met.",
				Buckets: []float64{1, 2, 3, 4, 6, 8},
			},
			[]string{"engine", "satisfied"},
		)

		browserLeasesActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_leases_active",
				Help: "Browser contexts currently leased.",
			},
		)

		browserLaunchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_launches_total",
				Help: "Headless browser process launches.",
			},
		)

		browserLeaseWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "browser_lease_wait_seconds",
				Help:    "Time spent waiting for a browser context permit.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_jobs_total",
				Help: "Article collection jobs finished, labeled by status.",
			},
			[]string{"status"},
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

// ObserveCycle counts one scheduler cycle outcome.
func ObserveCycle(outcome string) {
	Init()
	schedulerCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStep records a step's duration and outcome.
func ObserveStep(step, outcome string, duration time.Duration) {
	Init()
	schedulerStepDuration.WithLabelValues(step, outcome).Observe(duration.Seconds())
}

// ObserveProviderRequest counts one external provider call.
func ObserveProviderRequest(provider, outcome string) {
	Init()
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveContentStoreRequest counts one content store call.
func ObserveContentStoreRequest(operation, outcome string) {
	Init()
	contentStoreRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveFallbackAttempts records how many provider calls one search issued.
func ObserveFallbackAttempts(engine string, attempts int, satisfied bool) {
	Init()
	fallbackAttempts.WithLabelValues(engine, strconv.FormatBool(satisfied)).Observe(float64(attempts))
}

// IncActiveLeases increments the leased browser context gauge.
func IncActiveLeases() {
	Init()
	browserLeasesActive.Inc()
}

// DecActiveLeases decrements the leased browser context gauge.
func DecActiveLeases() {
	Init()
	browserLeasesActive.Dec()
}

// ObserveBrowserLaunch counts a browser process launch.
func ObserveBrowserLaunch() {
	Init()
	browserLaunchesTotal.Inc()
}

// ObserveLeaseWait records how long a caller waited for a context permit.
func ObserveLeaseWait(duration time.Duration) {
	Init()
	browserLeaseWaitSeconds.Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
