package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDurationMs  *prometheus.HistogramVec
	UpstreamRetryTotal *prometheus.CounterVec
	TaskSubmitTotal    *prometheus.CounterVec
	TaskPollTotal      *prometheus.CounterVec
	ActiveStreams      prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"route", "model", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muse_request_duration_ms",
			Help:    "Total request duration in milliseconds (including vendor latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"route", "model"}),

		UpstreamRetryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_upstream_retry_total",
			Help: "Retries issued against vendor APIs.",
		}, []string{"provider", "reason"}),

		TaskSubmitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_task_submit_total",
			Help: "Asynchronous generation tasks submitted.",
		}, []string{"provider", "status"}),

		TaskPollTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_task_poll_total",
			Help: "Task status queries, by terminal-or-not outcome.",
		}, []string{"provider", "outcome"}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "muse_active_streams",
			Help: "SSE streams currently open to clients.",
		}),
	}
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(route, model, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(route, model, status).Inc()
	m.RequestDurationMs.WithLabelValues(route, model).Observe(durationMs)
}

// RecordRetry records one retry of a vendor call.
func (m *Metrics) RecordRetry(provider, reason string) {
	m.UpstreamRetryTotal.WithLabelValues(provider, reason).Inc()
}

// RecordSubmit records a task submission attempt.
func (m *Metrics) RecordSubmit(provider, status string) {
	m.TaskSubmitTotal.WithLabelValues(provider, status).Inc()
}

// RecordPoll records a task status query.
func (m *Metrics) RecordPoll(provider, outcome string) {
	m.TaskPollTotal.WithLabelValues(provider, outcome).Inc()
}
