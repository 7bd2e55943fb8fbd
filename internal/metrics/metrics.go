// Package metrics exposes Prometheus collectors for the archiver.
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
	crawlPagesTotal            prometheus.Counter
	crawlTerminationsTotal     *prometheus.CounterVec
	articlesTotal              *prometheus.CounterVec
	archivedBytesTotal         prometheus.Counter
	retrievalsTotal            *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Article outcomes used as the "outcome" label of archiver_articles_total.
const (
	OutcomeArchived    = "archived"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeStoreFailed = "store_failed"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_crawl_pages_total",
				Help: "Total number of search result pages that produced article references.",
			},
		)

		crawlTerminationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_crawl_terminations_total",
				Help: "Total number of finished crawls, labeled by how they ended.",
			},
			[]string{"kind"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_articles_total",
				Help: "Total number of articles processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		archivedBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_archived_bytes_total",
				Help: "Total number of PDF bytes written to the content store.",
			},
		)

		retrievalsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_retrievals_total",
				Help: "Total number of artifact retrievals, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_active_workers",
				Help: "Number of fetch workers currently holding a navigator session.",
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delay_seconds",
				Help:    "Histogram of politeness delays before downloads, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// ObserveCrawlPage counts one result page that yielded references.
func ObserveCrawlPage() {
	Init()
	crawlPagesTotal.Inc()
}

// ObserveCrawlTermination counts a finished crawl by termination kind.
func ObserveCrawlTermination(kind string) {
	Init()
	crawlTerminationsTotal.WithLabelValues(kind).Inc()
}

// ObserveArticle counts one processed article and, when archived, its size.
func ObserveArticle(articleURL string, outcome string, bytesArchived int64) {
	Init()
	articlesTotal.WithLabelValues(SanitizeSite(articleURL), outcome).Inc()
	if bytesArchived > 0 {
		archivedBytesTotal.Add(float64(bytesArchived))
	}
}

// ObserveRetrieval counts one retrieval attempt.
func ObserveRetrieval(outcome string) {
	Init()
	retrievalsTotal.WithLabelValues(outcome).Inc()
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a request waited for its host's limiter.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
