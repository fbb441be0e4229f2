package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_sends_total",
			Help: "Total send attempts by outcome",
		},
		[]string{"outcome"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_queue_depth",
			Help: "Pending items across all active campaigns",
		},
	)

	quotaUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_daily_quota_used",
			Help: "Messages sent in the current calendar day",
		},
	)

	quotaLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_daily_quota_limit",
			Help: "Configured daily send limit",
		},
	)

	pacingDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courier_pacing_delay_seconds",
			Help:    "Per-message delay drawn by the scheduler",
			Buckets: []float64{5, 8, 10, 15, 20, 25, 30},
		},
	)

	extendedPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_extended_pauses_total",
			Help: "Extended pauses taken between send batches",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_idempotency_hits_total",
			Help: "Requests served from idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"client"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_db_connections_active",
			Help: "Active database connections",
		},
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

// RecordSend records a send attempt by outcome (SENT or FAILED)
func RecordSend(outcome string) {
	sendsTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the pending item count across active campaigns
func SetQueueDepth(count int) {
	queueDepth.Set(float64(count))
}

// SetQuota records current daily quota usage against the limit
func SetQuota(used, limit int) {
	quotaUsed.Set(float64(used))
	quotaLimit.Set(float64(limit))
}

// RecordPacingDelay records the delay drawn before a send
func RecordPacingDelay(d time.Duration) {
	pacingDelay.Observe(d.Seconds())
}

// RecordExtendedPause records an extended pause between batches
func RecordExtendedPause() {
	extendedPauses.Inc()
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(client string) {
	rateLimitRejections.WithLabelValues(client).Inc()
}

// SetDBConnections sets active database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
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

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
