// Package engine drives one workflow execution end to end: resolves the
// workflow, validates inputs, runs each step in declaration order against
// the Tool Invoker or Sandbox, and renders the declared outputs
// (spec.md §4.7).
package engine

import (
	"context"
	"time"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/execctx"
	"github.com/ploston/dael/internal/sandbox"
	"github.com/ploston/dael/internal/template"
	"github.com/ploston/dael/internal/tooling"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog"
)

// Status is the terminal state of one Execute call.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepOutcome is the public view of one step's recorded result, shaped for
// ExecutionResult serialization (spec.md §3 StepOutput: status, output,
// success, duration_ms, optional error).
type StepOutcome struct {
	StepID     string      `json:"step_id"`
	Status     string      `json:"status"`
	Output     interface{} `json:"output,omitempty"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	Attempts   int         `json:"attempts"`
	DurationMs int64       `json:"duration_ms"`
}

// ExecutionResult is the spec.md §4.7 `execute` return value.
type ExecutionResult struct {
	ExecutionID string                 `json:"execution_id"`
	Workflow    string                 `json:"workflow"`
	Status      Status                 `json:"status"`
	Output      interface{}            `json:"output,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Steps       []StepOutcome          `json:"steps"`
	DurationMs  int64                  `json:"duration_ms"`
	Err         *daelerrors.Error      `json:"error,omitempty"`
}

// Config carries the system-level defaults the precedence chain in step 4a
// falls back to when neither the step nor the workflow specifies one.
type Config struct {
	DefaultTimeout    time.Duration
	DefaultOnError    workflow.OnError
	DefaultRetry      workflow.Retry
	MaxConcurrent     int
}

// DefaultConfig returns the spec's hard-coded fallbacks (spec.md §4.7 step
// 4a) with execution.max_concurrent defaulted to 10 (spec.md §5).
func DefaultConfig() Config {
	timeoutSeconds, onError, retry := workflow.HardDefaults()
	return Config{
		DefaultTimeout: time.Duration(timeoutSeconds) * time.Second,
		DefaultOnError: onError,
		DefaultRetry:   retry,
		MaxConcurrent:  10,
	}
}

// Engine is the process-wide executor, shared by the CLI's `test` command
// and the MCP frontend's `tools/call` dispatch for `workflow:<name>`.
type Engine struct {
	workflows *workflow.Registry
	invoker   *tooling.Invoker
	sandbox   *sandbox.Sandbox
	config    Config
	logger    zerolog.Logger
	admission semaphore
}

// New constructs an Engine. Call tooling.Invoker.SetWorkflowRunner(engine)
// after construction so `workflow:<name>` tool calls route back here.
func New(workflows *workflow.Registry, invoker *tooling.Invoker, sb *sandbox.Sandbox, config Config, logger zerolog.Logger) *Engine {
	return &Engine{
		workflows: workflows,
		invoker:   invoker,
		sandbox:   sb,
		config:    config,
		logger:    logger.With().Str("component", "engine").Logger(),
		admission: newSemaphore(config.MaxConcurrent),
	}
}

// Execute implements spec.md §4.7's algorithm in full: resolve, validate,
// run steps sequentially, render outputs.
func (e *Engine) Execute(ctx context.Context, workflowName string, inputs map[string]interface{}) (*ExecutionResult, error) {
	if err := e.admission.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.admission.release()

	wf, ok := e.workflows.Lookup(workflowName)
	if !ok {
		return nil, daelerrors.New(daelerrors.WorkflowNotFound, "workflow %q is not registered", workflowName)
	}
	return e.run(ctx, wf, inputs)
}

// RunWorkflow implements tooling.WorkflowRunner: a workflow invoked as
// `workflow:<name>` through the Tool Invoker runs through the exact same
// path as a direct Execute call, and its output (not the full
// ExecutionResult) is what the calling step's template sees.
func (e *Engine) RunWorkflow(ctx context.Context, wf *workflow.Workflow, inputs map[string]interface{}) (interface{}, error) {
	result, err := e.run(ctx, wf, inputs)
	if err != nil {
		return nil, err
	}
	if result.Status == StatusFailed {
		return nil, result.Err
	}
	if result.Outputs != nil {
		return result.Outputs, nil
	}
	return result.Output, nil
}

func (e *Engine) run(ctx context.Context, wf *workflow.Workflow, inputs map[string]interface{}) (*ExecutionResult, error) {
	start := time.Now()

	validated, err := validateInputs(wf, inputs)
	if err != nil {
		derr := asDaelError(err)
		return &ExecutionResult{
			Workflow:   wf.Name,
			Status:     StatusFailed,
			Err:        derr,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	ec := execctx.New(ctx, e.logger, wf.Name, validated)
	runCtx := execctx.IntoContext(ec.Ctx, ec)

	allowed := sandbox.EffectiveAllowlist(wf.Packages)

	outcomes := make([]StepOutcome, 0, len(wf.Steps))

	for _, step := range wf.Steps {
		outcome, fatal := e.runStep(runCtx, ec, wf, step, allowed)
		outcomes = append(outcomes, outcome)
		if fatal != nil {
			return &ExecutionResult{
				ExecutionID: ec.ExecutionID,
				Workflow:    wf.Name,
				Status:      StatusFailed,
				Err:         asDaelError(fatal),
				Steps:       outcomes,
				DurationMs:  time.Since(start).Milliseconds(),
			}, nil
		}
	}

	output, outputs, err := renderOutputs(wf, ec)
	if err != nil {
		return &ExecutionResult{
			ExecutionID: ec.ExecutionID,
			Workflow:    wf.Name,
			Status:      StatusFailed,
			Err:         asDaelError(err),
			Steps:       outcomes,
			DurationMs:  time.Since(start).Milliseconds(),
		}, nil
	}

	return &ExecutionResult{
		ExecutionID: ec.ExecutionID,
		Workflow:    wf.Name,
		Status:      StatusCompleted,
		Output:      output,
		Outputs:     outputs,
		Steps:       outcomes,
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

// runStep executes one step per spec.md §4.7 step 4, returning its
// StepOutcome and, if on_error=fail applies, the error that should abort
// the whole execution.
func (e *Engine) runStep(ctx context.Context, ec *execctx.ExecutionContext, wf *workflow.Workflow, step *workflow.Step, allowed map[string]bool) (StepOutcome, error) {
	timeout, onError, retry := e.effectivePolicy(wf, step)

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stepStart := time.Now()
	result, attempts, err := e.dispatch(stepCtx, ec, step, retry, allowed)
	duration := time.Since(stepStart)

	if err == nil {
		ec.SetStepResult(&execctx.StepResult{
			StepID: step.ID, Status: execctx.StepStatusCompleted,
			StartTime: stepStart, EndTime: time.Now(), Duration: duration,
			Output: result, Attempts: attempts,
		})
		return StepOutcome{StepID: step.ID, Status: string(execctx.StepStatusCompleted), Output: result, Success: true, Attempts: attempts, DurationMs: duration.Milliseconds()}, nil
	}

	switch onError {
	case workflow.OnErrorContinue:
		ec.SetStepResult(&execctx.StepResult{
			StepID: step.ID, Status: execctx.StepStatusSkipped,
			StartTime: stepStart, EndTime: time.Now(), Duration: duration,
			Err: err, Attempts: attempts,
		})
		return StepOutcome{StepID: step.ID, Status: string(execctx.StepStatusSkipped), Success: false, Error: err.Error(), Attempts: attempts, DurationMs: duration.Milliseconds()}, nil

	default: // fail, or retry already exhausted by the Invoker/Sandbox
		ec.SetStepResult(&execctx.StepResult{
			StepID: step.ID, Status: execctx.StepStatusFailed,
			StartTime: stepStart, EndTime: time.Now(), Duration: duration,
			Err: err, Attempts: attempts,
		})
		outcome := StepOutcome{StepID: step.ID, Status: string(execctx.StepStatusFailed), Success: false, Error: err.Error(), Attempts: attempts, DurationMs: duration.Milliseconds()}
		return outcome, err
	}
}

func (e *Engine) dispatch(ctx context.Context, ec *execctx.ExecutionContext, step *workflow.Step, retry workflow.Retry, allowed map[string]bool) (interface{}, int, error) {
	root := templateRoot(ec)

	switch {
	case step.IsToolStep():
		params, err := renderParams(step.Params, root)
		if err != nil {
			return nil, 0, err
		}
		result, err := e.invoker.Invoke(ctx, step.Tool, params, retry)
		return result, 1, err

	case step.IsCodeStep():
		result, err := e.sandbox.Run(ctx, step.Code, sandbox.RunOptions{
			Allowed:    allowed,
			CallBudget: 0,
			Timeout:    timeoutFromContext(ctx),
			Vars:       root,
		})
		return result, 1, err

	default:
		return nil, 0, daelerrors.New(daelerrors.InternalError, "step %q is neither a tool nor a code step", step.ID)
	}
}

// renderParams renders step.Params as a structural document (spec.md
// §4.1): every string leaf, at any depth of nested maps/lists, is passed
// through template.Render. Non-string leaves pass through unchanged.
func renderParams(params map[string]interface{}, root map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		rendered, err := renderValue(v, root)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func renderValue(v interface{}, root map[string]interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return template.Render(val, root)

	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			rendered, err := renderValue(item, root)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			rendered, err := renderValue(item, root)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil

	default:
		return v, nil
	}
}

func renderOutputs(wf *workflow.Workflow, ec *execctx.ExecutionContext) (interface{}, map[string]interface{}, error) {
	root := templateRoot(ec)

	if wf.HasSingleOutput() {
		v, err := template.Render(wf.Output, root)
		if err != nil {
			return nil, nil, err
		}
		return v, nil, nil
	}

	if len(wf.Outputs) == 0 {
		return nil, nil, nil
	}

	outputs := make(map[string]interface{}, len(wf.Outputs))
	for _, spec := range wf.Outputs {
		if spec.FromPath != "" {
			v, err := template.ResolvePath(root, spec.FromPath)
			if err != nil {
				return nil, nil, daelerrors.New(daelerrors.TemplateError, "output %q: %v", spec.Name, err)
			}
			outputs[spec.Name] = v
			continue
		}
		v, err := template.Render(spec.Value, root)
		if err != nil {
			return nil, nil, err
		}
		outputs[spec.Name] = v
	}
	return nil, outputs, nil
}

func templateRoot(ec *execctx.ExecutionContext) map[string]interface{} {
	return map[string]interface{}{
		"inputs": ec.Inputs(),
		"steps":  ec.StepsView(),
		"config": ec.ConfigSnapshot(),
	}
}

// effectivePolicy resolves timeout/on_error/retry via the precedence chain
// step > workflow defaults > system config > hard-coded defaults
// (spec.md §4.7 step 4a).
func (e *Engine) effectivePolicy(wf *workflow.Workflow, step *workflow.Step) (time.Duration, workflow.OnError, workflow.Retry) {
	timeout := e.config.DefaultTimeout
	onError := e.config.DefaultOnError
	retry := e.config.DefaultRetry

	if wf.Defaults != nil {
		if wf.Defaults.Timeout != nil {
			timeout = time.Duration(*wf.Defaults.Timeout) * time.Second
		}
		if wf.Defaults.OnError != "" {
			onError = wf.Defaults.OnError
		}
		if wf.Defaults.Retry != nil {
			retry = *wf.Defaults.Retry
		}
	}

	if step.Timeout != nil {
		timeout = time.Duration(*step.Timeout) * time.Second
	}
	if step.OnError != "" {
		onError = step.OnError
	}
	if step.Retry != nil {
		retry = *step.Retry
	}

	return timeout, onError, retry
}

// timeoutFromContext derives the sandbox's wall-clock budget from ctx's
// deadline. A missing deadline returns 0 ("disabled"); an already-elapsed
// one returns a minimal positive duration rather than 0, since sandbox.Run
// treats exactly 0 as "disable the timeout" and the step's own ctx.Err()
// check (checked first, before this value is even consulted) is what
// actually fails an already-expired step fast with CODE_TIMEOUT.
func timeoutFromContext(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Nanosecond
	}
	return remaining
}

func asDaelError(err error) *daelerrors.Error {
	if derr, ok := err.(*daelerrors.Error); ok {
		return derr
	}
	return daelerrors.Wrap(daelerrors.InternalError, err, "%v", err)
}
