package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

// Metrics collects Prometheus metrics for the sourcing service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	selections      *prometheus.CounterVec
	summaries       *prometheus.CounterVec
	auditEvents     *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and comparison metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rfq_selections_total",
		Help: "Line allocations recorded, by source (seed or manual).",
	}, []string{"source"})
	summaries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rfq_summaries_total",
		Help: "Selection summaries built, by purpose.",
	}, []string{"kind"})
	audit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rfq_audit_events_total",
		Help: "Audit events by type and outcome (delivered, failed, dropped).",
	}, []string{"event", "outcome"})
	registry.MustRegister(requests, duration, selections, summaries, audit)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		selections:      selections,
		summaries:       summaries,
		auditEvents:     audit,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SelectionRecorded implements rfq.Recorder.
func (m *Metrics) SelectionRecorded(source string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(source).Inc()
}

// SummaryBuilt implements rfq.Recorder.
func (m *Metrics) SummaryBuilt(kind string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(kind).Inc()
}

// AuditDelivered implements rfq.Recorder.
func (m *Metrics) AuditDelivered(evt rfq.EventType, err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.auditEvents.WithLabelValues(string(evt), outcome).Inc()
}

// AuditDropped implements rfq.Recorder.
func (m *Metrics) AuditDropped(evt rfq.EventType) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(string(evt), "dropped").Inc()
}

var _ rfq.Recorder = (*Metrics)(nil)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
