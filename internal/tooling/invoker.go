package tooling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog"
)

// Invoker dispatches a named tool call with a deadline and retry policy,
// adapted from the teacher's exponential-backoff retrier
// (internal/engine/resilience.go) to the spec's exact backoff formula and
// an interruptible sleep.
type Invoker struct {
	registry *Registry
	logger   zerolog.Logger
	runner   WorkflowRunner
}

// NewInvoker constructs an Invoker bound to registry.
func NewInvoker(registry *Registry, logger zerolog.Logger) *Invoker {
	return &Invoker{registry: registry, logger: logger.With().Str("component", "tool_invoker").Logger()}
}

// IsAvailable reports whether name resolves in the registry's current
// snapshot — used by the Sandbox to gate context.tools.call.
func (inv *Invoker) IsAvailable(name string) bool {
	return inv.registry.IsAvailable(name)
}

// WorkflowRunner executes a workflow exposed as `workflow:<name>`; it is
// implemented by the Engine and injected here to avoid an
// engine↔tooling import cycle.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, wf *workflow.Workflow, inputs map[string]interface{}) (interface{}, error)
}

// SetWorkflowRunner wires the Engine in after both packages are
// constructed.
func (inv *Invoker) SetWorkflowRunner(r WorkflowRunner) { inv.runner = r }

// Invoke dispatches one tool call to its resolved backend/builtin/workflow
// target, applying retry with backoff per the step's retry spec. deadline
// governs the whole call including retries; ctx should already carry it.
func (inv *Invoker) Invoke(ctx context.Context, name string, params map[string]interface{}, retry workflow.Retry) (interface{}, error) {
	target, ok := inv.registry.resolve(name)
	if !ok {
		return nil, daelerrors.New(daelerrors.ToolUnavailable, "tool %q is not available in the current registry snapshot", name)
	}

	maxAttempts := retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, toolTimeoutOrContextErr(name, ctxErr)
		}

		result, err := inv.call(ctx, target, name, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts || !daelerrors.IsRetryable(err) {
			return nil, err
		}

		delay := backoffDelay(retry, attempt)
		inv.logger.Warn().Err(err).Str("tool", name).Int("attempt", attempt).Dur("delay", delay).Msg("retrying tool call")

		select {
		case <-ctx.Done():
			return nil, toolTimeoutOrContextErr(name, ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// backoffDelay implements spec.md §4.3's exact formula:
// min(max_delay, initial_delay * backoff_multiplier^(attempt-1)).
func backoffDelay(r workflow.Retry, attempt int) time.Duration {
	raw := r.InitialDelay * math.Pow(r.BackoffMultiplier, float64(attempt-1))
	if raw > r.MaxDelay {
		raw = r.MaxDelay
	}
	if raw < 0 {
		raw = 0
	}
	return time.Duration(raw * float64(time.Second))
}

func (inv *Invoker) call(ctx context.Context, target registeredTool, name string, params map[string]interface{}) (interface{}, error) {
	switch {
	case target.builtin != nil:
		out, err := target.builtin.Call(ctx, params)
		if err != nil {
			return nil, daelerrors.Wrap(daelerrors.ToolFailed, err, "builtin tool %q failed: %v", name, err)
		}
		return out, nil

	case target.workflow != nil:
		if inv.runner == nil {
			return nil, daelerrors.New(daelerrors.InternalError, "workflow tool %q invoked before an Engine was wired", name)
		}
		out, err := inv.runner.RunWorkflow(ctx, target.workflow, params)
		if err != nil {
			return nil, daelerrors.Wrap(daelerrors.ToolFailed, err, "workflow tool %q failed: %v", name, err)
		}
		return out, nil

	case target.backend != nil:
		out, err := target.backend.Call(ctx, name, params)
		if err != nil {
			return nil, classifyBackendError(name, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("registered tool %q has no dispatch target", name)
	}
}

// SandboxInvoker adapts Invoker to the narrow two-arg interface the
// Sandbox's context.tools.call bridge expects (internal/sandbox.Invoker).
// Calls made from inside a code fragment always run with a single
// attempt — retry/backoff is a step-level policy, not something that
// should pause a synchronous script evaluation mid-flight.
type SandboxInvoker struct {
	Inv *Invoker
}

func (s *SandboxInvoker) IsAvailable(name string) bool { return s.Inv.IsAvailable(name) }

func (s *SandboxInvoker) Invoke(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	return s.Inv.Invoke(ctx, name, params, workflow.Retry{MaxAttempts: 1})
}

func classifyBackendError(name string, err error) error {
	if derr, ok := err.(*daelerrors.Error); ok {
		return derr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return daelerrors.Wrap(daelerrors.ToolTimeout, err, "tool %q exceeded its deadline: %v", name, err)
	}
	return daelerrors.Wrap(daelerrors.ToolFailed, err, "tool %q failed: %v", name, err).WithRetryable(true)
}

// toolTimeoutOrContextErr maps a deadline-exceeded context error to the
// canonical TOOL_TIMEOUT error (spec.md §7); any other context error
// (e.g. explicit cancellation) is surfaced unwrapped.
func toolTimeoutOrContextErr(name string, ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return daelerrors.Wrap(daelerrors.ToolTimeout, ctxErr, "tool %q exceeded its deadline", name)
	}
	return ctxErr
}
