// Package telemetry exposes Prometheus metrics for the crawl pipeline
// and the search API.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdex_pages_fetched_total",
			Help: "Total pages fetched, labeled by host and HTTP status.",
		},
		[]string{"host", "status"},
	)

	crawlOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdex_crawl_outcomes_total",
			Help: "Total per-URL crawl outcomes, labeled by result.",
		},
		[]string{"result"},
	)

	frontierDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsdex_frontier_discovered",
			Help: "Number of URLs currently waiting in the frontier.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsdex_rate_limit_delay_seconds",
			Help:    "Histogram of politeness wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsdex_http_request_duration_seconds",
			Help:    "Histogram of API request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdex_http_requests_total",
			Help: "Total API requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
)

// ObservePageFetched records a completed fetch.
func ObservePageFetched(host string, status int) {
	pagesFetchedTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
}

// ObserveOutcome records a per-URL crawl outcome.
func ObserveOutcome(result string) {
	crawlOutcomesTotal.WithLabelValues(result).Inc()
}

// SetFrontierDepth records the number of discovered URLs awaiting fetch.
func SetFrontierDepth(n int) {
	frontierDepth.Set(float64(n))
}

// ObserveRateLimitDelay records time spent waiting on a host's politeness delay.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware recording API request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
