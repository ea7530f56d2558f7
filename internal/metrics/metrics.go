// Package metrics exposes Prometheus collectors for the aggregation service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"method", "route"},
	)

	sourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_fetch_total",
			Help: "Source adapter invocations, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	sourceRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_records_total",
			Help: "Records produced by source adapters before deduplication.",
		},
		[]string{"source"},
	)

	sourceDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_source_duration_seconds",
			Help:    "Histogram of source adapter latencies.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"source"},
	)

	coachAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_endpoint_attempts_total",
			Help: "Coach upstream endpoint attempts, labeled by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	coachAnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_answers_total",
			Help: "Coach answers served, labeled by origin (upstream or fallback).",
		},
		[]string{"origin"},
	)

	fetchRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_rate_limit_delays_seconds",
			Help:    "Histogram of outbound rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// Outcome labels for source adapter invocations.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Origin labels for coach answers.
const (
	OriginUpstream = "upstream"
	OriginFallback = "fallback"
)

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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSource records one adapter invocation. outcome is one of the
// Outcome constants; errors carry their kind as a suffix, e.g. "error:timeout".
func ObserveSource(source, outcome string, records int, duration time.Duration) {
	sourceFetchTotal.WithLabelValues(source, outcome).Inc()
	if records > 0 {
		sourceRecordsTotal.WithLabelValues(source).Add(float64(records))
	}
	sourceDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveCoachAttempt records one upstream endpoint attempt.
func ObserveCoachAttempt(endpoint, outcome string) {
	coachAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveCoachAnswer records the origin of a served coach answer.
func ObserveCoachAnswer(origin string) {
	coachAnswersTotal.WithLabelValues(origin).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	fetchRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
