// Package metrics exposes Prometheus collectors for the document pipeline.
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
	logLinesTotal              *prometheus.CounterVec
	documentsTotal             *prometheus.CounterVec
	availabilityChecksTotal    *prometheus.CounterVec
	catalogSubmissionsTotal    *prometheus.CounterVec
	launchesTotal              *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		logLinesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_log_lines_total",
				Help: "Crawl log lines scanned, labeled by result (matched, skipped, parse_error).",
			},
			[]string{"result"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_documents_total",
				Help: "Candidate documents processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		availabilityChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_availability_checks_total",
				Help: "Wayback availability resolutions, labeled by result.",
			},
			[]string{"result"},
		)

		catalogSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_catalog_submissions_total",
				Help: "Catalog document submissions, labeled by HTTP status code.",
			},
			[]string{"code"},
		)

		launchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_launches_total",
				Help: "Launch scans finished, labeled by completion state.",
			},
			[]string{"state"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "docwatch_active_workers",
				Help: "Number of workers currently processing a candidate.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docwatch_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// SanitizeHost extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveLogLine counts one scanned crawl log line.
func ObserveLogLine(result string) {
	Init()
	logLinesTotal.WithLabelValues(result).Inc()
}

// ObserveDocument counts one processed candidate by outcome.
func ObserveDocument(outcome string) {
	Init()
	documentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAvailability counts one availability resolution.
func ObserveAvailability(result string) {
	Init()
	availabilityChecksTotal.WithLabelValues(result).Inc()
}

// ObserveCatalogSubmission counts one catalog submission; code 0 means the
// request never got a response.
func ObserveCatalogSubmission(code int) {
	Init()
	catalogSubmissionsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveLaunch counts one finished launch scan.
func ObserveLaunch(complete bool) {
	Init()
	state := "incomplete"
	if complete {
		state = "complete"
	}
	launchesTotal.WithLabelValues(state).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
