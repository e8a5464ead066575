// Package metrics collects and exposes Prometheus metrics for the auth
// server: ceremony outcomes, session issuance, and HTTP request latency.
// The collector is created once at startup and injected into the plugins
// that record domain events.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flow label values for ceremony metrics.
const (
	FlowRegistration   = "registration"
	FlowAuthentication = "authentication"
)

// Outcome label values for ceremony metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector registers and records all Questa metrics. A nil *Collector is
// valid and records nothing, so tests can pass nil instead of wiring a registry.
type Collector struct {
	ceremonies      *prometheus.CounterVec
	sessionsIssued  prometheus.Counter
	sessionsRevoked prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ceremonies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "questa_passkey_ceremonies_total",
			Help: "Completed passkey ceremonies by flow and outcome.",
		}, []string{"flow", "outcome"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "questa_sessions_issued_total",
			Help: "Sessions minted after successful authentication.",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "questa_sessions_revoked_total",
			Help: "Sessions explicitly revoked via logout.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "questa_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.ceremonies,
		c.sessionsIssued,
		c.sessionsRevoked,
		c.requestDuration,
	)

	return c
}

// RecordCeremony records a completed passkey ceremony attempt.
func (c *Collector) RecordCeremony(flow, outcome string) {
	if c == nil {
		return
	}
	c.ceremonies.WithLabelValues(flow, outcome).Inc()
}

// RecordSessionIssued records a newly minted session.
func (c *Collector) RecordSessionIssued() {
	if c == nil {
		return
	}
	c.sessionsIssued.Inc()
}

// RecordSessionRevoked records an explicit logout.
func (c *Collector) RecordSessionRevoked() {
	if c == nil {
		return
	}
	c.sessionsRevoked.Inc()
}

// Middleware returns Echo middleware that observes request latency for every
// handled request. Uses the route pattern (c.Path()) rather than the raw URL
// so path parameters don't explode label cardinality.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			if c == nil {
				return next(ec)
			}

			start := time.Now()
			err := next(ec)

			status := ec.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			route := ec.Path()
			if route == "" {
				route = "unmatched"
			}

			c.requestDuration.WithLabelValues(
				ec.Request().Method,
				route,
				strconv.Itoa(status),
			).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
