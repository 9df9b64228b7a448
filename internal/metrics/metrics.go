// Package metrics exposes Prometheus metrics for room list views and HTTP traffic
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "myrooms"

// Fetch results recorded by RecordFetch
const (
	FetchSuccess   = "success"
	FetchFailure   = "failure"
	FetchDiscarded = "discarded"
)

// UnmatchedRoute labels requests that did not match a registered route
const UnmatchedRoute = "unmatched"

// Metrics holds the collectors of one application instance
type Metrics struct {
	registry *prometheus.Registry

	roomFetches      *prometheus.CounterVec
	roomFetchLatency prometheus.Histogram
	mountedViews     prometheus.Gauge
	modalTransitions *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		roomFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_fetch_total",
			Help:      "Room list fetches by result",
		}, []string{"result"}),
		roomFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "room_fetch_duration_seconds",
			Help:      "Duration of room API list calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		mountedViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounted_views",
			Help:      "Number of room list views currently mounted on this instance",
		}),
		modalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modal_transitions_total",
			Help:      "Join-room modal transitions by event",
		}, []string{"event"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.roomFetches,
		m.roomFetchLatency,
		m.mountedViews,
		m.modalTransitions,
		m.httpRequests,
		m.httpLatency,
	)

	return m
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFetch counts a finished room fetch
func (m *Metrics) RecordFetch(result string, elapsed time.Duration) {
	m.roomFetches.WithLabelValues(result).Inc()
	if result != FetchDiscarded {
		m.roomFetchLatency.Observe(elapsed.Seconds())
	}
}

// ViewMounted increments the mounted view gauge
func (m *Metrics) ViewMounted() {
	m.mountedViews.Inc()
}

// ViewUnmounted decrements the mounted view gauge
func (m *Metrics) ViewUnmounted() {
	m.mountedViews.Dec()
}

// RecordModalTransition counts a modal transition
func (m *Metrics) RecordModalTransition(event string) {
	m.modalTransitions.WithLabelValues(event).Inc()
}

// Handler exposes the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the recorder
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by the matched chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		// Unmatched paths share one label to keep cardinality bounded
		route := UnmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		m.httpRequests.With(labels).Inc()
		m.httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}
