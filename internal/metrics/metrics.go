// Package metrics provides Prometheus metrics for the bridge.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Token verification metrics
	tokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_token_verifications_total",
			Help: "Total number of bearer token verifications",
		},
		[]string{"result"}, // "ok" or a rejection code
	)

	// Key set metrics
	keySetFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_keyset_fetches_total",
			Help: "Total number of outbound key set fetches",
		},
		[]string{"status"}, // "ok" or "error"
	)

	keySetKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_keyset_keys",
			Help: "Number of signing keys in the cached key set",
		},
	)

	// Lifecycle operation metrics
	lifecycleOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_lifecycle_operations_total",
			Help: "Total number of account lifecycle operations",
		},
		[]string{"operation", "outcome"}, // outcome: "ok" or "error"
	)

	// Provisioning metrics
	usersProvisionedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_users_provisioned_total",
			Help: "Total number of local users auto-provisioned from verified tokens",
		},
	)

	// Rate limiting metrics
	rateLimitExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"endpoint"},
	)
)

// RecordTokenVerification records a token verification outcome.
func RecordTokenVerification(result string) {
	tokenVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordKeySetFetch records an outbound key set fetch.
func RecordKeySetFetch(ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	keySetFetchesTotal.WithLabelValues(status).Inc()
}

// SetKeySetSize sets the number of cached signing keys.
func SetKeySetSize(count int) {
	keySetKeysGauge.Set(float64(count))
}

// RecordLifecycleOp records an account lifecycle operation outcome.
func RecordLifecycleOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	lifecycleOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordUserProvisioned records a local user auto-provisioned from claims.
func RecordUserProvisioned() {
	usersProvisionedTotal.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event.
func RecordRateLimitExceeded(endpoint string) {
	rateLimitExceededTotal.WithLabelValues(endpoint).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes the path for metrics to avoid high cardinality.
func normalizePath(path string) string {
	// Keep well-known paths as-is
	knownPaths := []string{
		"/healthz",
		"/readyz",
		"/metrics",
		"/auth/register",
		"/auth/confirm",
		"/auth/confirm-request",
		"/auth/login",
		"/auth/forgot-password-request",
		"/auth/forgot-password",
		"/auth/refresh",
		"/auth/update",
		"/auth/delete",
		"/auth/disable",
		"/auth/callback",
	}

	for _, known := range knownPaths {
		if path == known {
			return path
		}
	}

	// Normalize unknown paths to prevent high cardinality
	return "/other"
}
