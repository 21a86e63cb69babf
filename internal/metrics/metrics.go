// Package metrics exposes Prometheus instrumentation for streaming sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons recorded by IncFramesSkipped.
const (
	ReasonDecode     = "decode"
	ReasonProcessing = "processing"
)

// Metrics holds Prometheus collectors for the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	framesReceived  prometheus.Counter
	framesProcessed prometheus.Counter
	framesSkipped   *prometheus.CounterVec
	handsDetected   *prometheus.CounterVec
	frameDuration   prometheus.Histogram
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
}

// New creates and registers the service metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handstream_sessions_active",
			Help: "Number of open hand tracking sessions",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handstream_sessions_total",
			Help: "Total number of hand tracking sessions accepted",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handstream_frames_received_total",
			Help: "Total number of inbound frame messages",
		}),
		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handstream_frames_processed_total",
			Help: "Total number of frames answered with a result",
		}),
		framesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handstream_frames_skipped_total",
			Help: "Total number of frames dropped without a result",
		}, []string{"reason"}),
		handsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handstream_hands_detected_total",
			Help: "Total number of hands analyzed, by gesture",
		}, []string{"gesture"}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "handstream_frame_duration_seconds",
			Help:    "Time from frame receipt to result, for processed frames",
			Buckets: []float64{.002, .005, .01, .02, .04, .08, .16, .32, .64},
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handstream_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handstream_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.sessionsActive,
		m.sessionsTotal,
		m.framesReceived,
		m.framesProcessed,
		m.framesSkipped,
		m.handsDetected,
		m.frameDuration,
		m.requestsTotal,
		m.errorsTotal,
	)

	return m
}

// SessionOpened records a newly accepted session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// SessionClosed records the end of a session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// IncFramesReceived increments the inbound frame counter.
func (m *Metrics) IncFramesReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// ObserveFrame records a processed frame, its latency, and the gestures it contained.
func (m *Metrics) ObserveFrame(d time.Duration, gestures []string) {
	if m == nil {
		return
	}
	m.framesProcessed.Inc()
	m.frameDuration.Observe(d.Seconds())
	for _, g := range gestures {
		m.handsDetected.WithLabelValues(g).Inc()
	}
}

// IncFramesSkipped increments the skipped frame counter for reason.
func (m *Metrics) IncFramesSkipped(reason string) {
	if m == nil {
		return
	}
	m.framesSkipped.WithLabelValues(reason).Inc()
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
