package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the A2F stream service
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    *prometheus.CounterVec
	SessionDuration   prometheus.Histogram

	// Chunk metrics
	ChunksForwarded prometheus.Counter
	ChunkSize       prometheus.Histogram
	BytesForwarded  prometheus.Counter

	// Audio2Face metrics
	RemoteRequests        *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := newMetrics(promauto.With(reg))
	m.registry = reg
	return m
}

func newMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "a2f_active_sessions",
			Help: "Current number of streaming sessions in flight",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2f_sessions_created_total",
			Help: "Total number of streaming sessions created",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2f_sessions_completed_total",
			Help: "Total number of streaming sessions that forwarded their whole file",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2f_sessions_failed_total",
			Help: "Total number of streaming sessions that failed",
		}, []string{"stage"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2f_session_duration_seconds",
			Help:    "Wall time of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),

		// Chunk metrics
		ChunksForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2f_chunks_forwarded_total",
			Help: "Total number of audio chunks pushed to Audio2Face",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2f_chunk_size_bytes",
			Help:    "Size of forwarded audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		BytesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2f_bytes_forwarded_total",
			Help: "Total number of PCM bytes pushed to Audio2Face",
		}),

		// Audio2Face metrics
		RemoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2f_remote_requests_total",
			Help: "Total number of requests sent to the Audio2Face service",
		}, []string{"operation", "outcome"}),
		RemoteRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2f_remote_request_duration_seconds",
			Help:    "Duration of requests sent to the Audio2Face service",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"operation"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2f_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2f_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2f_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordSessionCreated increments the sessions created counter and the active gauge
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionCompleted records a session that forwarded its whole file
func (m *Metrics) RecordSessionCompleted(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionsCompleted.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed records a failed session; stage is "initialize" or "stream"
func (m *Metrics) RecordSessionFailed(stage string, durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionsFailed.WithLabelValues(stage).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkForwarded records a chunk accepted by Audio2Face
func (m *Metrics) RecordChunkForwarded(sizeBytes int) {
	m.ChunksForwarded.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
	m.BytesForwarded.Add(float64(sizeBytes))
}

// RecordRemoteRequest records one call to the Audio2Face service
func (m *Metrics) RecordRemoteRequest(operation string, success bool, durationSeconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.RemoteRequests.WithLabelValues(operation, outcome).Inc()
	m.RemoteRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
