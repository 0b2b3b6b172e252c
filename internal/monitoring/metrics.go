package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 协调指标
	ReconcileRunsTotal *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram
	PendingLists       prometheus.Gauge
	TransitionsTotal   *prometheus.CounterVec
	LastRunTimestamp   prometheus.Gauge

	// 信号指标
	ActionsTotal *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 在独立的注册表上创建监控指标
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		// HTTP 请求指标
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 协调指标
		ReconcileRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listsync_reconcile_runs_total",
				Help: "Total number of reconciliation runs",
			},
			[]string{"result"},
		),

		ReconcileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listsync_reconcile_duration_seconds",
				Help:    "Reconciliation run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),

		PendingLists: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "listsync_pending_lists",
				Help: "Number of pending mailing lists read by the last run",
			},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listsync_transitions_total",
				Help: "Total number of mailing list transitions",
			},
			[]string{"status", "result"},
		),

		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "listsync_last_run_timestamp_seconds",
				Help: "Unix time of the last completed reconciliation run",
			},
		),

		// 信号指标
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listsync_actions_total",
				Help: "Total number of rebuild and restart actions executed",
			},
			[]string{"kind", "result"},
		),

		// 错误指标
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listsync_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "listsync_panics_total",
				Help: "Total number of panics recovered",
			},
		),
	}
}

// Registry 返回指标注册表（用于推送网关）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordReconcileRun 记录一次协调运行
func (m *Metrics) RecordReconcileRun(result string, pending int, duration time.Duration) {
	m.ReconcileRunsTotal.WithLabelValues(result).Inc()
	m.ReconcileDuration.Observe(duration.Seconds())
	m.PendingLists.Set(float64(pending))
	m.LastRunTimestamp.SetToCurrentTime()
}

// RecordTransition 记录单个列表的状态迁移结果
func (m *Metrics) RecordTransition(status, result string) {
	m.TransitionsTotal.WithLabelValues(status, result).Inc()
}

// RecordAction 记录信号执行结果
func (m *Metrics) RecordAction(kind, result string) {
	m.ActionsTotal.WithLabelValues(kind, result).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
