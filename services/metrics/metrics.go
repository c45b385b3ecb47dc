// Package metrics exposes the application's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farafmb/klubhaus/core/modification"
)

const namespace = "klubhaus"

type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	proposals *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

var _ modification.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modification",
			Name:      "proposals_total",
			Help:      "Stored profile modifications, by initial state.",
		}, []string{"state"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modification",
			Name:      "decisions_total",
			Help:      "Admin decisions on profile modifications, by resulting state.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.requests, m.latency, m.proposals, m.decisions,
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts and times the requests handled by echo.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				// let the error handler write the response so its status is known
				ctx.Error(err)
			}

			code := ctx.Response().Status
			route := ctx.Path()
			if route == "" {
				route = "unknown"
			}
			method := ctx.Request().Method

			m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func (m *Metrics) ModificationProposed(state modification.State) {
	m.proposals.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) ModificationDecided(state modification.State) {
	m.decisions.WithLabelValues(state.String()).Inc()
}
