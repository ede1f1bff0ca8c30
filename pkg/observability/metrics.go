package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Authorization metrics
	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzDecisionDuration *prometheus.HistogramVec

	// Token metrics
	TokensIssuedTotal  *prometheus.CounterVec
	TokenVerifiesTotal *prometheus.CounterVec
	TokensRevokedTotal prometheus.Counter

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter
	SessionsEndedTotal   *prometheus.CounterVec

	// API key metrics
	APIKeyAuthTotal    *prometheus.CounterVec
	RateLimitHitsTotal *prometheus.CounterVec

	// RBAC metrics
	PermissionChecksTotal *prometheus.CounterVec

	// Redis metrics
	RedisCommandsTotal   *prometheus.CounterVec
	RedisCommandDuration *prometheus.HistogramVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dotmac_auth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dotmac_auth_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),

		// Authorization metrics
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_authz_decisions_total",
				Help: "Authorization decisions by tier, outcome and denial code",
			},
			[]string{"tier", "outcome", "code"},
		),
		AuthzDecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dotmac_auth_authz_decision_duration_seconds",
				Help:    "Authorization decision latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"tier"},
		),

		// Token metrics
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_tokens_issued_total",
				Help: "Tokens issued by type",
			},
			[]string{"type"},
		),
		TokenVerifiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_token_verifies_total",
				Help: "Token verifications by outcome",
			},
			[]string{"outcome"},
		),
		TokensRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dotmac_auth_tokens_revoked_total",
				Help: "Tokens explicitly revoked",
			},
		),

		// Session metrics
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dotmac_auth_sessions_active",
				Help: "Sessions currently live",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dotmac_auth_sessions_created_total",
				Help: "Sessions created",
			},
		),
		SessionsEndedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_sessions_ended_total",
				Help: "Sessions ended by reason",
			},
			[]string{"reason"},
		),

		// API key metrics
		APIKeyAuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_apikey_auth_total",
				Help: "API key authentications by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_ratelimit_hits_total",
				Help: "Requests refused by rate limiting, by window",
			},
			[]string{"window"},
		),

		// RBAC metrics
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_permission_checks_total",
				Help: "Permission checks by decision",
			},
			[]string{"decision"},
		),
		// Redis metrics
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_redis_commands_total",
				Help: "Redis commands by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dotmac_auth_redis_command_duration_seconds",
				Help:    "Redis command latency in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"operation"},
		),

		// Audit metrics
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_auth_audit_events_total",
				Help: "Audit events recorded, by category",
			},
			[]string{"category"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.TokensIssuedTotal,
		m.TokenVerifiesTotal,
		m.TokensRevokedTotal,
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsEndedTotal,
		m.APIKeyAuthTotal,
		m.RateLimitHitsTotal,
		m.PermissionChecksTotal,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.AuditEventsTotal,
	)

	return m
}

// DecisionCacheStats is a snapshot of the permission decision cache,
// sampled on scrape rather than pushed on every lookup.
type DecisionCacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// RegisterDecisionCacheStats exposes decision cache counters from a stats
// source. The engine already tracks hits and misses internally, so these are
// read on scrape instead of double-counted on the hot path.
func RegisterDecisionCacheStats(registry *prometheus.Registry, stats func() DecisionCacheStats) {
	registry.MustRegister(
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "dotmac_auth_decision_cache_hits_total",
				Help: "Permission decision cache hits",
			},
			func() float64 { return float64(stats().Hits) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "dotmac_auth_decision_cache_misses_total",
				Help: "Permission decision cache misses",
			},
			func() float64 { return float64(stats().Misses) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "dotmac_auth_decision_cache_evictions_total",
				Help: "Permission decision cache evictions",
			},
			func() float64 { return float64(stats().Evictions) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "dotmac_auth_decision_cache_entries",
				Help: "Permission decision cache entries currently held",
			},
			func() float64 { return float64(stats().Size) },
		),
	)
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
