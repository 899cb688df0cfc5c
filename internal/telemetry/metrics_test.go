package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m.RequestTotal == nil {
		t.Error("RequestTotal should not be nil")
	}
	if m.RequestDurationMs == nil {
		t.Error("RequestDurationMs should not be nil")
	}
	if m.UpstreamRetryTotal == nil {
		t.Error("UpstreamRetryTotal should not be nil")
	}
	if m.TaskSubmitTotal == nil {
		t.Error("TaskSubmitTotal should not be nil")
	}
	if m.TaskPollTotal == nil {
		t.Error("TaskPollTotal should not be nil")
	}
	if m.ActiveStreams == nil {
		t.Error("ActiveStreams should not be nil")
	}
}

func TestRecordRequest(t *testing.T) {
	// Use a fresh registry to avoid polluting the default one
	reg := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_muse_request_total",
		Help: "Test counter",
	}, []string{"route", "model", "status"})

	durationMs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_muse_request_duration_ms",
		Help:    "Test histogram",
		Buckets: []float64{100, 500, 1000},
	}, []string{"route", "model"})

	reg.MustRegister(requestTotal, durationMs)

	m := &Metrics{
		RequestTotal:      requestTotal,
		RequestDurationMs: durationMs,
	}

	m.RecordRequest("/chat", "qwen_normal", "200", 150)

	counter, err := requestTotal.GetMetricWithLabelValues("/chat", "qwen_normal", "200")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	counter.Write(&metric)
	if *metric.Counter.Value != 1 {
		t.Errorf("expected request count 1, got %v", *metric.Counter.Value)
	}
}

func TestRecordRetryAndPoll(t *testing.T) {
	retryTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_muse_upstream_retry_total",
		Help: "Test counter",
	}, []string{"provider", "reason"})

	pollTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_muse_task_poll_total",
		Help: "Test counter",
	}, []string{"provider", "outcome"})

	m := &Metrics{UpstreamRetryTotal: retryTotal, TaskPollTotal: pollTotal}

	m.RecordRetry("wanx", "rate_limit")
	m.RecordRetry("wanx", "rate_limit")
	m.RecordPoll("cogvideo", "processing")

	counter, _ := retryTotal.GetMetricWithLabelValues("wanx", "rate_limit")
	var metric dto.Metric
	counter.Write(&metric)
	if *metric.Counter.Value != 2 {
		t.Errorf("expected retry count 2, got %v", *metric.Counter.Value)
	}

	pollCounter, _ := pollTotal.GetMetricWithLabelValues("cogvideo", "processing")
	pollCounter.Write(&metric)
	if *metric.Counter.Value != 1 {
		t.Errorf("expected poll count 1, got %v", *metric.Counter.Value)
	}
}
