// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tokengate gate.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthBuckets covers gate latencies from a cached key and account hit
// (sub-millisecond) to a cold JWKS fetch or slow database (seconds).
var AuthBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

var (
	// RequestsTotal counts all HTTP requests by method, route pattern and
	// status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method and
	// route pattern. Proxied requests include the upstream round trip.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokengate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthDecisionsTotal counts gate decisions by outcome and public error kind.
	AuthDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_auth_decisions_total",
			Help: "Gate decisions",
		},
		[]string{"decision", "kind"},
	)

	// AuthRejectionsTotal counts rejections by internal reason. Reasons are
	// never exposed to callers; this is where operators tell a backend
	// outage apart from unknown users.
	AuthRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_auth_rejections_total",
			Help: "Gate rejections by reason",
		},
		[]string{"reason"},
	)

	// AccountLookupErrorsTotal counts failed account lookups by type
	// (not_found, backend, canceled).
	AccountLookupErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_account_lookup_errors_total",
			Help: "Account lookup failures",
		},
		[]string{"type"},
	)

	// AuthDuration records the time spent in the gate per decision.
	AuthDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokengate_auth_duration_seconds",
			Help:    "Gate latency",
			Buckets: AuthBuckets,
		},
		[]string{"decision"},
	)

	// AccountCacheTotal counts account cache lookups by result (hit, miss, error).
	AccountCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_account_cache_total",
			Help: "Account cache lookups",
		},
		[]string{"result"},
	)

	// UpstreamErrorsTotal counts failed proxy round trips to the protected service.
	UpstreamErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokengate_upstream_errors_total",
			Help: "Upstream proxy errors",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokengate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthDecisionsTotal,
		AuthRejectionsTotal,
		AccountLookupErrorsTotal,
		AuthDuration,
		AccountCacheTotal,
		UpstreamErrorsTotal,
		RateLimitRejectedTotal,
	)
}
