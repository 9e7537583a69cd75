// Package execctx holds the per-execution state bag threaded through one
// workflow run: inputs, step results, config values, and a tool-call
// counter. The Sandbox's call budget is a separate per-run counter
// (internal/sandbox/budget.go) and does not read this one.
package execctx

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey struct{}

// IntoContext returns a context carrying ec, retrievable with FromContext.
// Builtins that need execution-scoped state (config_get/set, and any
// future builtin) receive it this way rather than as an extra parameter.
func IntoContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ec)
}

// FromContext retrieves the ExecutionContext stored by IntoContext.
func FromContext(ctx context.Context) (*ExecutionContext, bool) {
	ec, ok := ctx.Value(ctxKey{}).(*ExecutionContext)
	return ec, ok
}

// StepStatus is the execution status of a single step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult is the recorded outcome of one step execution, addressable
// from later steps' templates and code as `steps.<id>.output` /
// `steps.<id>.error` (spec.md §3 StepOutput).
type StepResult struct {
	StepID    string
	Status    StepStatus
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Output    interface{}
	Err       error
	Attempts  int
}

// ExecutionContext is the state bag for one workflow execution
// (spec.md §4.6). One instance is created per Execute call and never
// shared across executions.
type ExecutionContext struct {
	ExecutionID string
	WorkflowName string
	StartTime   time.Time
	Ctx         context.Context
	Logger      zerolog.Logger

	mu          sync.RWMutex
	inputs      map[string]interface{}
	config      map[string]interface{}
	stepResults map[string]*StepResult
	toolCalls   int
}

// New creates an ExecutionContext for a single workflow run. inputs is the
// fully-validated/defaulted input set (spec.md §4.4). The config map
// visible to config_get/config_set starts empty for every execution.
func New(ctx context.Context, logger zerolog.Logger, workflowName string, inputs map[string]interface{}) *ExecutionContext {
	executionID := uuid.NewString()
	return &ExecutionContext{
		ExecutionID:  executionID,
		WorkflowName: workflowName,
		StartTime:    time.Now(),
		Ctx:          ctx,
		Logger: logger.With().
			Str("workflow", workflowName).
			Str("execution_id", executionID).
			Logger(),
		inputs:      cloneMap(inputs),
		config:      make(map[string]interface{}),
		stepResults: make(map[string]*StepResult),
	}
}

// Inputs returns a read-only snapshot of the execution's input values.
func (ec *ExecutionContext) Inputs() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return cloneMap(ec.inputs)
}

// Input returns a single input by name.
func (ec *ExecutionContext) Input(name string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.inputs[name]
	return v, ok
}

// ConfigGet reads a dotted-path config key (built-in config_get, spec.md
// §4.3). A missing path returns (nil, false).
func (ec *ExecutionContext) ConfigGet(path string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return getNestedValue(ec.config, path)
}

// ConfigSet writes a dotted-path config key (built-in config_set).
func (ec *ExecutionContext) ConfigSet(path string, value interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	setNestedValue(ec.config, path, value)
}

// ConfigSnapshot returns a copy of the full config tree, for config_done
// validation and diagnostics.
func (ec *ExecutionContext) ConfigSnapshot() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return cloneMap(ec.config)
}

// StepResult returns the recorded result of stepID, if the step has run.
func (ec *ExecutionContext) StepResult(stepID string) (*StepResult, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	r, ok := ec.stepResults[stepID]
	return r, ok
}

// SetStepResult records the outcome of a step. Called once per step by the
// Engine, in declaration order, so earlier results are always visible to
// later steps' templates (spec.md §4.1 `steps.<id>.*` path).
func (ec *ExecutionContext) SetStepResult(r *StepResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.stepResults[r.StepID] = r
}

// StepsView returns the `steps` namespace as a plain map, suitable for
// handing to the template evaluator and sandbox: steps.<id>.output,
// steps.<id>.error, steps.<id>.status (spec.md §3 StepOutput, §4.1).
func (ec *ExecutionContext) StepsView() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	view := make(map[string]interface{}, len(ec.stepResults))
	for id, r := range ec.stepResults {
		entry := map[string]interface{}{
			"status": string(r.Status),
			"output": r.Output,
		}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		}
		view[id] = entry
	}
	return view
}

// IncrementToolCalls atomically bumps the execution's tool-call count and
// returns the new total. The Sandbox's call-budget gate (spec.md §4.2)
// keeps its own counter and does not call this.
func (ec *ExecutionContext) IncrementToolCalls() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.toolCalls++
	return ec.toolCalls
}

// ToolCalls returns the current tool-call count without mutating it.
func (ec *ExecutionContext) ToolCalls() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.toolCalls
}

// Elapsed returns the wall-clock time since execution start, for workflow
// and step timeout enforcement.
func (ec *ExecutionContext) Elapsed() time.Duration {
	return time.Since(ec.StartTime)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func getNestedValue(target map[string]interface{}, path string) (interface{}, bool) {
	keys := strings.Split(path, ".")
	current := target
	for _, k := range keys[:len(keys)-1] {
		next, exists := current[k]
		if !exists {
			return nil, false
		}
		nextMap, ok := next.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = nextMap
	}
	v, ok := current[keys[len(keys)-1]]
	return v, ok
}

func setNestedValue(target map[string]interface{}, path string, value interface{}) {
	keys := strings.Split(path, ".")
	current := target
	for _, k := range keys[:len(keys)-1] {
		next, exists := current[k]
		nextMap, ok := next.(map[string]interface{})
		if !exists || !ok {
			nextMap = make(map[string]interface{})
			current[k] = nextMap
		}
		current = nextMap
	}
	current[keys[len(keys)-1]] = value
}
