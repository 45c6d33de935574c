// Package metrics provides pipeline metrics for observability
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for pipeline runs
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "refugia_stage_duration_seconds",
				Help: "Time taken by each pipeline stage",
				// 1ms to ~65s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 17),
			},
			[]string{"stage"},
		),
		stageRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refugia_stage_rows_total",
				Help: "Rows entering and leaving each pipeline stage",
			},
			[]string{"stage", "direction"}, // direction: in, out
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refugia_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"}, // completed, failed
		),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "refugia_runs_active",
			Help: "Pipeline runs currently executing",
		}),
	}

	if registry != nil {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStage records a stage's duration and row counts
func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration, rowsIn, rowsOut int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageRows.WithLabelValues(stage, "in").Add(float64(rowsIn))
	m.stageRows.WithLabelValues(stage, "out").Add(float64(rowsOut))
}

// RunStarted increments the active run gauge
func (m *PipelineMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished records a run outcome
func (m *PipelineMetrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
}

// Describe implements prometheus.Collector
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.stageDuration.Describe(ch)
	m.stageRows.Describe(ch)
	m.runsTotal.Describe(ch)
	m.runsActive.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.stageDuration.Collect(ch)
	m.stageRows.Collect(ch)
	m.runsTotal.Collect(ch)
	m.runsActive.Collect(ch)
}
