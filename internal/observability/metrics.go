package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch attempt outcomes.
const (
	FetchSuccess   = "success"
	FetchTransient = "transient"
	FetchRejected  = "rejected"
	FetchCancelled = "cancelled"
)

// Resolve outcomes other than a provenance tier.
const (
	ResolveInvalid     = "invalid_scope"
	ResolveUnavailable = "unavailable"
	ResolveCancelled   = "cancelled"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manifestd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "manifestd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	resolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manifestd",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Manifest resolutions by outcome (provenance tier or failure kind).",
		},
		[]string{"outcome"},
	)
	resolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "manifestd",
			Subsystem: "resolver",
			Name:      "resolution_duration_seconds",
			Help:      "Manifest resolution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manifestd",
			Subsystem: "remote",
			Name:      "fetch_attempts_total",
			Help:      "Remote manifest fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, resolveTotal, resolveDuration, fetchAttempts)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordResolve counts one finished resolution.
func RecordResolve(outcome string, duration time.Duration) {
	RegisterMetrics()
	resolveTotal.WithLabelValues(outcome).Inc()
	resolveDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordFetchAttempt counts one remote fetch attempt.
func RecordFetchAttempt(outcome string) {
	RegisterMetrics()
	fetchAttempts.WithLabelValues(outcome).Inc()
}
