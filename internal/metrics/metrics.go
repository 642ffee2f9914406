// Package metrics defines the Prometheus instrumentation shared by the
// registry and the pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the service registers.
type Metrics struct {
	JobsEnqueued  prometheus.Counter
	JobsSettled   *prometheus.CounterVec
	JobsRunning   prometheus.Gauge
	QueueDepth    prometheus.Gauge
	StageDuration *prometheus.HistogramVec
	ModelCalls    *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyforge_jobs_enqueued_total",
			Help: "Jobs admitted to the queue.",
		}),
		JobsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyforge_jobs_settled_total",
			Help: "Jobs reaching a terminal status.",
		}, []string{"status"}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storyforge_jobs_running",
			Help: "Jobs currently holding a concurrency slot.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storyforge_queue_depth",
			Help: "Jobs waiting for a concurrency slot.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyforge_stage_duration_seconds",
			Help:    "Wall time of individual pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"pipeline", "stage"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyforge_model_calls_total",
			Help: "Model completions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.JobsEnqueued,
		m.JobsSettled,
		m.JobsRunning,
		m.QueueDepth,
		m.StageDuration,
		m.ModelCalls,
	)
	return m
}
