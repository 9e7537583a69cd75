package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the process-wide set of Prometheus collectors. Only the MCP
// dispatcher records into it (ObserveExecution, ObserveToolCall);
// ExecutionsActive and ObserveSandboxRun have no caller. Grounded on the teacher's
// ExecutionManager (internal/server/server.go), generalized from one
// HTTP-request-scoped execution counter to DAEL's full domain: workflow
// executions, tool calls (split by outcome and retry), and sandbox runs.
type Metrics struct {
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	ExecutionsActive   prometheus.Gauge
	ToolCallsTotal     *prometheus.CounterVec
	ToolCallDuration   *prometheus.HistogramVec
	ToolCallRetries    *prometheus.CounterVec
	SandboxRunsTotal   *prometheus.CounterVec
	SandboxRunDuration prometheus.Histogram
}

// NewMetrics constructs and registers every collector against registerer.
// Pass prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid cross-test collisions.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dael_executions_total",
			Help: "Total number of workflow executions started, by workflow and terminal status.",
		}, []string{"workflow", "status"}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dael_execution_duration_seconds",
			Help: "Workflow execution wall-clock duration in seconds.",
		}, []string{"workflow", "status"}),
		ExecutionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dael_executions_active",
			Help: "Number of workflow executions currently in flight.",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dael_tool_calls_total",
			Help: "Total tool invocations, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dael_tool_call_duration_seconds",
			Help: "Tool invocation duration in seconds, including retries.",
		}, []string{"tool"}),
		ToolCallRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dael_tool_call_retries_total",
			Help: "Number of retry attempts made across tool invocations.",
		}, []string{"tool"}),
		SandboxRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dael_sandbox_runs_total",
			Help: "Total code-step sandbox executions, by outcome.",
		}, []string{"outcome"}),
		SandboxRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "dael_sandbox_run_duration_seconds",
			Help: "Sandbox code-step execution duration in seconds.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.ExecutionsTotal,
			m.ExecutionDuration,
			m.ExecutionsActive,
			m.ToolCallsTotal,
			m.ToolCallDuration,
			m.ToolCallRetries,
			m.SandboxRunsTotal,
			m.SandboxRunDuration,
		)
	}

	return m
}

// ObserveExecution records one finished workflow execution.
func (m *Metrics) ObserveExecution(workflow, status string, seconds float64) {
	m.ExecutionsTotal.WithLabelValues(workflow, status).Inc()
	m.ExecutionDuration.WithLabelValues(workflow, status).Observe(seconds)
}

// ObserveToolCall records one finished tool invocation, including any
// retries attempted before it settled.
func (m *Metrics) ObserveToolCall(tool, outcome string, retries int, seconds float64) {
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(seconds)
	if retries > 0 {
		m.ToolCallRetries.WithLabelValues(tool).Add(float64(retries))
	}
}

// ObserveSandboxRun records one finished code-step sandbox execution.
func (m *Metrics) ObserveSandboxRun(outcome string, seconds float64) {
	m.SandboxRunsTotal.WithLabelValues(outcome).Inc()
	m.SandboxRunDuration.Observe(seconds)
}
