// Package metrics provides Prometheus instrumentation for the engine core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine collects the metrics the TAO engine and its collaborators emit
// during a run. A single Engine instance is shared by the engine (which
// records iteration, tool and hook observations) and the Run Driver (which
// records orphan reclaims) for the lifetime of one Run Driver process.
type Engine struct {
	// Iterations counts completed TAO iterations by terminal outcome.
	// Labels: outcome (continue, or the final run status:
	// COMPLETED|FAILED|WAITING_FOR_INPUT)
	Iterations *prometheus.CounterVec

	// LLMInvocationDuration measures wall-clock time spent waiting on the
	// LLM provider per invocation.
	LLMInvocationDuration prometheus.Histogram

	// ToolExecutionDuration measures tool subprocess wall-clock time.
	// Labels: tool_name, status (success|failed)
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool dispatches.
	// Labels: tool_name, status (success|failed)
	ToolExecutionCounter *prometheus.CounterVec

	// HookExecutionDuration measures hook subprocess wall-clock time.
	// Labels: hook_point, status (success|failed)
	HookExecutionDuration *prometheus.HistogramVec

	// RunsByStatus counts runs reaching each terminal/pause status.
	// Labels: status
	RunsByStatus *prometheus.CounterVec

	// OrphansReclaimed counts runs the Janitor transitioned from RUNNING
	// to INTERRUPTED.
	OrphansReclaimed prometheus.Counter
}

// NewEngine creates and registers the engine metrics with the default
// Prometheus registry. Call once per process.
func NewEngine() *Engine {
	return &Engine{
		Iterations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delta_engine_iterations_total",
			Help: "TAO iterations completed, labeled by outcome.",
		}, []string{"outcome"}),

		LLMInvocationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "delta_engine_llm_invocation_duration_seconds",
			Help:    "Wall-clock time of a single LLM invocation.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),

		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delta_engine_tool_execution_duration_seconds",
			Help:    "Wall-clock time of a tool subprocess.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name", "status"}),

		ToolExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delta_engine_tool_executions_total",
			Help: "Tool dispatches, labeled by tool name and outcome status.",
		}, []string{"tool_name", "status"}),

		HookExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delta_engine_hook_execution_duration_seconds",
			Help:    "Wall-clock time of a hook subprocess.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"hook_point", "status"}),

		RunsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delta_engine_runs_total",
			Help: "Runs reaching a terminal or pause status.",
		}, []string{"status"}),

		OrphansReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "delta_engine_janitor_orphans_reclaimed_total",
			Help: "Runs the Janitor transitioned from RUNNING to INTERRUPTED.",
		}),
	}
}

// ObserveToolExecution records a completed tool dispatch.
func (e *Engine) ObserveToolExecution(toolName, status string, d time.Duration) {
	if e == nil {
		return
	}
	e.ToolExecutionDuration.WithLabelValues(toolName, status).Observe(d.Seconds())
	e.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
}

// ObserveHookExecution records a completed hook invocation.
func (e *Engine) ObserveHookExecution(hookPoint, status string, d time.Duration) {
	if e == nil {
		return
	}
	e.HookExecutionDuration.WithLabelValues(hookPoint, status).Observe(d.Seconds())
}

// ObserveIteration records one completed TAO iteration.
func (e *Engine) ObserveIteration(outcome string) {
	if e == nil {
		return
	}
	e.Iterations.WithLabelValues(outcome).Inc()
}

// ObserveRunStatus records a run reaching a terminal or pause status.
func (e *Engine) ObserveRunStatus(status string) {
	if e == nil {
		return
	}
	e.RunsByStatus.WithLabelValues(status).Inc()
}

// ObserveOrphanReclaimed records a Janitor reclaim.
func (e *Engine) ObserveOrphanReclaimed() {
	if e == nil {
		return
	}
	e.OrphansReclaimed.Inc()
}
