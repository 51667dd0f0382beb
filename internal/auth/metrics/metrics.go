// Package metrics exposes Prometheus counters for the auth service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "esladmin"

// Metrics implements service.Observer and counts gate rejections and HTTP
// traffic. Each instance owns its registry so tests do not collide.
type Metrics struct {
	reg *prometheus.Registry

	logins      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	logouts     *prometheus.CounterVec
	purged      *prometheus.CounterVec
	gateRejects prometheus.Counter
	rateLimited prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "login_attempts_total", Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "refresh_attempts_total", Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		logouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "logout_attempts_total", Help: "Logouts by outcome.",
		}, []string{"outcome"}),
		purged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "housekeeping_purged_total", Help: "Rows removed by housekeeping.",
		}, []string{"kind"}),
		gateRejects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "revoked_token_rejections_total", Help: "Requests refused because the bearer token was revoked.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_requests_total", Help: "Requests refused by the rate limiter.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) LoginAttempt(outcome string)   { m.logins.WithLabelValues(outcome).Inc() }
func (m *Metrics) RefreshAttempt(outcome string) { m.refreshes.WithLabelValues(outcome).Inc() }
func (m *Metrics) LogoutAttempt(outcome string)  { m.logouts.WithLabelValues(outcome).Inc() }
func (m *Metrics) Purged(kind string, n int64)   { m.purged.WithLabelValues(kind).Add(float64(n)) }

// RevokedTokenRejected is the revocation gate's reject hook.
func (m *Metrics) RevokedTokenRejected() { m.gateRejects.Inc() }

// RateLimited is the rate limiter's reject hook.
func (m *Metrics) RateLimited() { m.rateLimited.Inc() }

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// HTTPMiddleware records request counts and latency labelled by the
// ServeMux pattern that matched, so path parameters do not explode the
// label space.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
