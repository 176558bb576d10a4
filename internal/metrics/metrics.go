package metrics

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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_dispatch_cycles_total",
			Help: "Dispatch cycles by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)

	cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_dispatch_cycle_duration_seconds",
			Help:    "Wall time of a dispatch cycle",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"trigger"},
	)

	candidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_scanner_candidates_total",
			Help: "Nudge candidates produced by the eligibility scanner",
		},
		[]string{"kind"},
	)

	scanErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_scanner_errors_total",
			Help: "Failed eligibility lookups by kind",
		},
		[]string{"kind"},
	)

	nudgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_nudges_total",
			Help: "Dispatch decisions by kind, result, and skip reason",
		},
		[]string{"kind", "result", "reason"},
	)

	callbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_slack_callbacks_total",
			Help: "Slack interaction callbacks by outcome",
		},
		[]string{"result"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"route"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tandem_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCycle records a finished dispatch cycle.
func RecordCycle(trigger, status string, duration time.Duration) {
	cyclesTotal.WithLabelValues(trigger, status).Inc()
	cycleDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordCandidates adds n scanner candidates for kind.
func RecordCandidates(kind string, n int) {
	candidatesTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordScanError records a failed eligibility lookup.
func RecordScanError(kind string) {
	scanErrors.WithLabelValues(kind).Inc()
}

// RecordNudge records one dispatch decision. reason is empty for sends.
func RecordNudge(kind, result, reason string) {
	nudgesTotal.WithLabelValues(kind, result, reason).Inc()
}

// RecordCallback records the outcome of a Slack interaction callback.
func RecordCallback(result string) {
	callbacksTotal.WithLabelValues(result).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(route string) {
	rateLimitRejections.WithLabelValues(route).Inc()
}

// SetBreakerState publishes a circuit breaker's state.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics. The
// chi route pattern is used as the path label so ids do not explode
// cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		RecordRequest(r.Method, path, wrapped.status, time.Since(start))
	})
}
