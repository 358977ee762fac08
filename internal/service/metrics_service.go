package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the storage layer and the encoding domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	changesApplied    *prometheus.CounterVec
	changesRejected   *prometheus.CounterVec
	submissionsTotal  prometheus.Counter
	sheetsAssembled   prometheus.Counter
	bridgeRequests    prometheus.Counter
	bridgeRestarts    prometheus.Counter
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	changesApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "score_changes_applied_total",
		Help: "Applied score encoding changes",
	}, []string{"role"})

	changesRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "score_changes_rejected_total",
		Help: "Rejected score encoding proposals",
	}, []string{"reason"})

	submissionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "score_submissions_total",
		Help: "Draft-to-final submission runs",
	})

	sheetsAssembled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "score_sheets_assembled_total",
		Help: "Score sheets assembled for tutors",
	})

	bridgeRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_bridge_requests_total",
		Help: "Score sheet requests consumed from the broker",
	})

	bridgeRestarts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_bridge_restarts_total",
		Help: "Queue bridge consumer restarts",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration,
		changesApplied, changesRejected, submissionsTotal, sheetsAssembled,
		bridgeRequests, bridgeRestarts, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		dbQueryDuration: dbQueryDuration,
		changesApplied:  changesApplied,
		changesRejected: changesRejected,
		submissionsTotal: submissionsTotal,
		sheetsAssembled: sheetsAssembled,
		bridgeRequests:  bridgeRequests,
		bridgeRestarts:  bridgeRestarts,
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

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordBatch counts the outcome of an encoding batch.
func (m *MetricsService) RecordBatch(role string, applied int, rejectedByReason map[string]int) {
	if m == nil {
		return
	}
	if applied > 0 {
		m.changesApplied.WithLabelValues(role).Add(float64(applied))
	}
	for reason, count := range rejectedByReason {
		m.changesRejected.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordSubmission counts one promotion run.
func (m *MetricsService) RecordSubmission() {
	if m == nil {
		return
	}
	m.submissionsTotal.Inc()
}

// RecordSheetsAssembled counts assembled score sheets.
func (m *MetricsService) RecordSheetsAssembled(count int) {
	if m == nil || count == 0 {
		return
	}
	m.sheetsAssembled.Add(float64(count))
}

// RecordBridgeRequest counts one consumed broker envelope.
func (m *MetricsService) RecordBridgeRequest() {
	if m == nil {
		return
	}
	m.bridgeRequests.Inc()
}

// RecordBridgeRestart counts one consumer restart.
func (m *MetricsService) RecordBridgeRestart() {
	if m == nil {
		return
	}
	m.bridgeRestarts.Inc()
}
