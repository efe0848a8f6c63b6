package pipeline

import (
	"time"

	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/task"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	ItemsTotal        *prometheus.CounterVec
	TaskTransitions   *prometheus.CounterVec
	RunsInFlight      prometheus.Gauge
	DispatchQueueSize prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_runs_total",
				Help: "Total number of finished runs by final status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fanout_run_duration_seconds",
				Help:    "Run duration in seconds, from start to final status",
				Buckets: prometheus.DefBuckets,
			},
		),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_items_total",
				Help: "Total number of run items by final item status",
			},
			[]string{"status"},
		),
		TaskTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_fetch_task_transitions_total",
				Help: "Fetch task state transitions observed by the batch runner",
			},
			[]string{"status"},
		),
		RunsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fanout_runs_in_flight",
				Help: "Runs currently executing",
			},
		),
		DispatchQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fanout_dispatch_queue_size",
				Help: "Runs waiting in the dispatch queue",
			},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ItemsTotal,
		m.TaskTransitions,
		m.RunsInFlight,
		m.DispatchQueueSize,
	)

	return m
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

func (m *Metrics) runFinished(run *domain.Run, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
	m.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	for status, n := range run.CountItems() {
		m.ItemsTotal.WithLabelValues(string(status)).Add(float64(n))
	}
}

func (m *Metrics) taskTransition(status task.TaskStatus) {
	if m == nil {
		return
	}
	m.TaskTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) setQueueSize(n int) {
	if m == nil {
		return
	}
	m.DispatchQueueSize.Set(float64(n))
}
