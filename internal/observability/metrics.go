package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects run loop and tool pipeline measurements. It satisfies both
// the agent and tool pipeline meter interfaces so one instance serves the
// whole runtime.
type Metrics struct {
	// RunCounter counts completed runs by outcome (done|error).
	RunCounter *prometheus.CounterVec

	// RunDuration measures run wall time in seconds.
	RunDuration *prometheus.HistogramVec

	// IterationCounter counts run loop iterations by model.
	IterationCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption by model and type (input|output).
	TokensUsed *prometheus.CounterVec

	// CompactionCounter counts compaction attempts by outcome (ok|error).
	CompactionCounter *prometheus.CounterVec

	// ToolCounter counts tool executions by name and outcome
	// (ok|blocked|error).
	ToolCounter *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds by name.
	ToolDuration *prometheus.HistogramVec
}

// NewMetrics registers all runtime metrics on the given registerer, falling
// back to the Prometheus default registry when nil. Call once per process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_runs_total",
				Help: "Total number of completed runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strand_run_duration_seconds",
				Help:    "Duration of runs in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		IterationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_iterations_total",
				Help: "Total number of run loop iterations by model",
			},
			[]string{"model"},
		),
		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_tokens_total",
				Help: "Total number of tokens consumed by model and type",
			},
			[]string{"model", "type"},
		),
		CompactionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_compactions_total",
				Help: "Total number of history compactions by outcome",
			},
			[]string{"outcome"},
		),
		ToolCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_tool_executions_total",
				Help: "Total number of tool executions by name and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strand_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
	}
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(outcome string, seconds float64) {
	m.RunCounter.WithLabelValues(outcome).Inc()
	m.RunDuration.WithLabelValues(outcome).Observe(seconds)
}

// ObserveIteration records one run loop iteration.
func (m *Metrics) ObserveIteration(model string) {
	m.IterationCounter.WithLabelValues(model).Inc()
}

// ObserveCompaction records one compaction attempt.
func (m *Metrics) ObserveCompaction(outcome string) {
	m.CompactionCounter.WithLabelValues(outcome).Inc()
}

// ObserveUsage records token consumption reported by the provider.
func (m *Metrics) ObserveUsage(model string, input, output int) {
	if input > 0 {
		m.TokensUsed.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		m.TokensUsed.WithLabelValues(model, "output").Add(float64(output))
	}
}

// ObserveTool records one tool pipeline execution.
func (m *Metrics) ObserveTool(name, outcome string, seconds float64) {
	m.ToolCounter.WithLabelValues(name, outcome).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(seconds)
}
