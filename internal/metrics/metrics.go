// Package metrics exposes Prometheus collectors for the API and workers.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "botstudio"

// Metrics holds the application collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	generations   *prometheus.CounterVec
	notifications prometheus.Counter
	wsConnections prometheus.Gauge
	wsDropped     prometheus.Counter
	quotaRejected *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "jobs_finished_total",
			Help:      "Generation jobs by final status.",
		}, []string{"status"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Notifications written to live websocket connections.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "websocket_connections",
			Help:      "Open notification websocket connections.",
		}),
		wsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "slow_clients_dropped_total",
			Help:      "Websocket connections closed because their buffer was full.",
		}),
		quotaRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "quota_rejections_total",
			Help:      "Requests refused because a plan quota was exhausted.",
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.generations,
		m.notifications,
		m.wsConnections,
		m.wsDropped,
		m.quotaRejected,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		if rec.status == http.StatusPaymentRequired {
			m.quotaRejected.WithLabelValues(route).Inc()
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// GenerationFinished counts a job reaching a final status.
func (m *Metrics) GenerationFinished(status domain.GenerationStatus) {
	m.generations.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) Connected()      { m.wsConnections.Inc() }
func (m *Metrics) Disconnected()   { m.wsConnections.Dec() }
func (m *Metrics) Delivered(n int) { m.notifications.Add(float64(n)) }
func (m *Metrics) Dropped()        { m.wsDropped.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
