package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the VFS backend.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// VFS operation metrics
	VFSOps       *prometheus.CounterVec
	VFSOpErrors  *prometheus.CounterVec
	UploadsBytes prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsSwept  prometheus.Counter

	// Sharing metrics
	Shares *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSPushes      *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on its own registry, so multiple
// server instances in one process never collide on registration.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		startTime: time.Now(),
		registry:  registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		VFSOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_vfs_operations_total",
				Help: "Total number of VFS operations",
			},
			[]string{"operation"},
		),
		VFSOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_vfs_operation_errors_total",
				Help: "Total number of failed VFS operations",
			},
			[]string{"operation"},
		),
		UploadsBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_vfs_upload_bytes_total",
				Help: "Total bytes received through uploads",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_sessions_active",
				Help: "Currently live sessions",
			},
		),
		SessionsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_sessions_swept_total",
				Help: "Sessions removed by the expiry sweep",
			},
		),

		Shares: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_shares_total",
				Help: "Share workflow transitions",
			},
			[]string{"action"}, // proposed, accepted, denied
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_ws_connections",
				Help: "Open WebSocket connections",
			},
		),
		WSPushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_ws_pushes_total",
				Help: "Listings and change events pushed to clients",
			},
			[]string{"kind"}, // tick, mutation
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// Handler serves this collector's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordVFSOp records a VFS operation outcome.
func (m *Metrics) RecordVFSOp(operation string, err error) {
	m.VFSOps.WithLabelValues(operation).Inc()
	if err != nil {
		m.VFSOpErrors.WithLabelValues(operation).Inc()
	}
}
