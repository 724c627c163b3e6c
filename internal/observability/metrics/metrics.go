// Package metrics exposes Prometheus collectors for the supervisor and the
// HTTP control surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder aggregates the panel's Prometheus collectors. It implements the
// supervisor's Metrics interface.
type Recorder struct {
	registry *prometheus.Registry

	streamUp          prometheus.Gauge
	processExitsTotal *prometheus.CounterVec
	restartsTotal     prometheus.Counter
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New creates and registers the panel's collectors on a private registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	streamUp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relaycast_stream_up",
		Help: "Whether an encoder process is currently running (0 or 1)",
	})
	processExitsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_process_exits_total",
		Help: "Encoder process exits by classification",
	}, []string{"class"})
	restartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaycast_restarts_total",
		Help: "Restarts scheduled by the supervisor",
	})
	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_http_requests_total",
		Help: "HTTP requests by method, path, and status",
	}, []string{"method", "path", "status"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relaycast_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	registry.MustRegister(
		streamUp,
		processExitsTotal,
		restartsTotal,
		requestsTotal,
		requestDuration,
	)

	return &Recorder{
		registry:          registry,
		streamUp:          streamUp,
		processExitsTotal: processExitsTotal,
		restartsTotal:     restartsTotal,
		requestsTotal:     requestsTotal,
		requestDuration:   requestDuration,
	}
}

// StreamStarted marks the encoder as up.
func (r *Recorder) StreamStarted() {
	r.streamUp.Set(1)
}

// StreamStopped marks the encoder as down.
func (r *Recorder) StreamStopped() {
	r.streamUp.Set(0)
}

// ProcessExit counts one encoder exit under its classification.
func (r *Recorder) ProcessExit(class string) {
	r.processExitsTotal.WithLabelValues(class).Inc()
}

// RestartScheduled counts one scheduled restart.
func (r *Recorder) RestartScheduled() {
	r.restartsTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
