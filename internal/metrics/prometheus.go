package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all scandash metrics.
	namespace = "scandash"

	subsystemScan   = "scan"
	subsystemEngine = "engine"
	subsystemAPI    = "api"
)

// PrometheusMetrics holds the Prometheus collectors exported for scraping.
type PrometheusMetrics struct {
	// Scan lifecycle
	scansStarted    *prometheus.CounterVec
	scansCompleted  prometheus.Counter
	admissionDenied *prometheus.CounterVec
	activeScans     prometheus.Gauge
	reconcilePasses prometheus.Counter
	reconcileErrors prometheus.Counter

	// Engine adapter
	engineRequests *prometheus.CounterVec
	engineFailures *prometheus.CounterVec
	engineLatency  *prometheus.HistogramVec

	// API
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates the Prometheus collectors and registers
// them together with the standard Go and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		registry: registry,
		scansStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan,
			Name: "started_total", Help: "Scans started via admission control",
		}, []string{"engine_accepted"}),
		scansCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan,
			Name: "completed_total", Help: "Scans observed completed by reconciliation",
		}),
		admissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan,
			Name: "admission_denied_total", Help: "Start requests rejected by admission control",
		}, []string{"reason"}),
		activeScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystemScan,
			Name: "active", Help: "Records currently running or paused",
		}),
		reconcilePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan,
			Name: "reconcile_passes_total", Help: "Reconciliation passes executed",
		}),
		reconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan,
			Name: "reconcile_errors_total", Help: "Per-record reconciliation failures",
		}),
		engineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemEngine,
			Name: "requests_total", Help: "Engine API calls by operation",
		}, []string{"operation"}),
		engineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemEngine,
			Name: "failures_total", Help: "Engine API failures by operation and code",
		}, []string{"operation", "code"}),
		engineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystemEngine,
			Name: "request_duration_seconds", Help: "Engine API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemAPI,
			Name: "http_requests_total", Help: "HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystemAPI,
			Name: "http_request_duration_seconds", Help: "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	registry.MustRegister(
		pm.scansStarted, pm.scansCompleted, pm.admissionDenied, pm.activeScans,
		pm.reconcilePasses, pm.reconcileErrors,
		pm.engineRequests, pm.engineFailures, pm.engineLatency,
		pm.httpRequests, pm.httpDuration,
	)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// Handler returns the HTTP handler serving the scrape endpoint.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// RecordScanStarted records a started scan.
func (pm *PrometheusMetrics) RecordScanStarted(engineAccepted bool) {
	label := "false"
	if engineAccepted {
		label = "true"
	}
	pm.scansStarted.WithLabelValues(label).Inc()
}

// RecordScanCompleted records a completion observed by reconciliation.
func (pm *PrometheusMetrics) RecordScanCompleted() {
	pm.scansCompleted.Inc()
}

// RecordAdmissionDenied records an admission rejection.
func (pm *PrometheusMetrics) RecordAdmissionDenied(reason string) {
	pm.admissionDenied.WithLabelValues(reason).Inc()
}

// SetActiveScans sets the active scan gauge.
func (pm *PrometheusMetrics) SetActiveScans(n int) {
	pm.activeScans.Set(float64(n))
}

// RecordReconcilePass records one reconciliation pass.
func (pm *PrometheusMetrics) RecordReconcilePass() {
	pm.reconcilePasses.Inc()
}

// RecordReconcileError records one per-record reconciliation failure.
func (pm *PrometheusMetrics) RecordReconcileError() {
	pm.reconcileErrors.Inc()
}

// RecordEngineRequest records an engine call and its latency.
func (pm *PrometheusMetrics) RecordEngineRequest(operation string, duration time.Duration) {
	pm.engineRequests.WithLabelValues(operation).Inc()
	pm.engineLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEngineFailure records a failed engine call.
func (pm *PrometheusMetrics) RecordEngineFailure(operation, code string) {
	pm.engineFailures.WithLabelValues(operation, code).Inc()
}

// RecordHTTPRequest records an API request.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
