package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	marksTotal      *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	scansIngested   *prometheus.CounterVec
	scansReconciled *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_sessions_active",
		Help: "Number of currently active attendance sessions",
	})

	marksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Total attendance marks written, by method and status",
	}, []string{"method", "status"})

	tokensIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qr_tokens_issued_total",
		Help: "Total QR tokens minted",
	})

	scansIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biometric_scans_ingested_total",
		Help: "Total biometric scans accepted from devices, by outcome",
	}, []string{"result"})

	scansReconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biometric_scans_reconciled_total",
		Help: "Total biometric scans examined by the reconciler, by outcome",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sessionsActive, marksTotal,
		tokensIssued, scansIngested, scansReconciled, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		sessionsActive:  sessionsActive,
		marksTotal:      marksTotal,
		tokensIssued:    tokensIssued,
		scansIngested:   scansIngested,
		scansReconciled: scansReconciled,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// SessionActivated bumps the active session gauge.
func (m *MetricsService) SessionActivated() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed drops the active session gauge.
func (m *MetricsService) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// RecordMark counts an applied attendance mark.
func (m *MetricsService) RecordMark(method, status string) {
	if m == nil {
		return
	}
	m.marksTotal.WithLabelValues(method, status).Inc()
}

// RecordTokenIssued counts a minted QR token.
func (m *MetricsService) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// RecordScanIngested counts a device scan, result is "created" or "duplicate".
func (m *MetricsService) RecordScanIngested(result string) {
	if m == nil {
		return
	}
	m.scansIngested.WithLabelValues(result).Inc()
}

// RecordScanReconciled counts one reconciler outcome, "processed" or "unmatched".
func (m *MetricsService) RecordScanReconciled(result string) {
	if m == nil {
		return
	}
	m.scansReconciled.WithLabelValues(result).Inc()
}
