package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveToolCountsByOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveTool("shell", "ok", 0.2)
	m.ObserveTool("shell", "ok", 0.1)
	m.ObserveTool("shell", "blocked", 0.0)
	m.ObserveTool("read", "error", 0.05)

	expected := `
		# HELP strand_tool_executions_total Total number of tool executions by name and outcome
		# TYPE strand_tool_executions_total counter
		strand_tool_executions_total{outcome="blocked",tool="shell"} 1
		strand_tool_executions_total{outcome="error",tool="read"} 1
		strand_tool_executions_total{outcome="ok",tool="shell"} 2
	`
	if err := testutil.CollectAndCompare(m.ToolCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected tool counter state: %v", err)
	}
	if count := testutil.CollectAndCount(m.ToolDuration); count != 2 {
		t.Errorf("tool duration series = %d, want 2", count)
	}
}

func TestObserveUsageSkipsZeroes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveUsage("claude-sonnet-4-5", 1200, 0)
	m.ObserveUsage("claude-sonnet-4-5", 300, 80)

	expected := `
		# HELP strand_tokens_total Total number of tokens consumed by model and type
		# TYPE strand_tokens_total counter
		strand_tokens_total{model="claude-sonnet-4-5",type="input"} 1500
		strand_tokens_total{model="claude-sonnet-4-5",type="output"} 80
	`
	if err := testutil.CollectAndCompare(m.TokensUsed, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected token counter state: %v", err)
	}
}

func TestObserveRunAndCompaction(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRun("done", 12.5)
	m.ObserveRun("error", 0.8)
	m.ObserveCompaction("ok")
	m.ObserveIteration("claude-sonnet-4-5")
	m.ObserveIteration("claude-sonnet-4-5")

	if v := testutil.ToFloat64(m.RunCounter.WithLabelValues("done")); v != 1 {
		t.Errorf("done runs = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.CompactionCounter.WithLabelValues("ok")); v != 1 {
		t.Errorf("compactions = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.IterationCounter.WithLabelValues("claude-sonnet-4-5")); v != 2 {
		t.Errorf("iterations = %v, want 2", v)
	}
}
