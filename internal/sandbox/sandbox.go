// Package sandbox evaluates workflow `code` step fragments under the
// seven restriction layers named in spec.md §4.2, embedding goja (a
// pure-Go ECMAScript interpreter) as the scripting runtime.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dop251/goja"
)

// Invoker is the narrow surface the Sandbox needs from the Tool Invoker:
// whether a tool name is available in the current registry snapshot, and
// dispatching a call to it. Declared here (rather than imported from
// internal/tooling) to avoid a sandbox↔tooling import cycle — tooling
// depends on sandbox for python_exec, not the other way around.
type Invoker interface {
	IsAvailable(name string) bool
	Invoke(ctx context.Context, name string, params map[string]interface{}) (interface{}, error)
}

const pythonExecToolName = "python_exec"

type sandboxMarkerKey struct{}

// WithInSandbox marks ctx as already executing inside a sandboxed code
// step, for the recursion-prevention layer (spec.md §4.2 layer 7).
func WithInSandbox(ctx context.Context) context.Context {
	return context.WithValue(ctx, sandboxMarkerKey{}, true)
}

// InSandbox reports whether ctx is marked as already inside a sandboxed
// evaluation.
func InSandbox(ctx context.Context) bool {
	v, _ := ctx.Value(sandboxMarkerKey{}).(bool)
	return v
}

// Sandbox evaluates code-step fragments.
type Sandbox struct {
	invoker Invoker
}

// New constructs a Sandbox bridging `context.tools.call` to invoker.
func New(invoker Invoker) *Sandbox {
	return &Sandbox{invoker: invoker}
}

// RunOptions parameterizes one evaluation.
type RunOptions struct {
	// Allowed is the effective package allowlist (profile ∪ additional).
	Allowed map[string]bool
	// CallBudget caps context.tools.call invocations; 0 uses the default.
	CallBudget int
	// Timeout is the wall-clock budget for the whole fragment; 0 disables it.
	Timeout time.Duration
	// Vars becomes the fragment-visible top-level bindings
	// (inputs/steps/config).
	Vars map[string]interface{}
}

// Run evaluates fragment and returns its completion value — the value of
// a top-level `return` statement, since fragments are wrapped in an
// implicit function body.
func (s *Sandbox) Run(ctx context.Context, fragment string, opts RunOptions) (interface{}, error) {
	if InSandbox(ctx) {
		return nil, errSecurity("a code step cannot invoke another sandboxed evaluation from within itself")
	}

	// A step timeout of 0 produces an already-expired ctx (context.WithTimeout
	// cancels synchronously when the deadline has already passed): fail fast
	// with CODE_TIMEOUT on this first suspension point (spec.md §8) rather
	// than silently running unbounded because opts.Timeout rounded to 0 too.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errTimeout("code fragment's deadline had already elapsed before execution began")
		}
		return nil, errRuntime("code fragment aborted: %v", err)
	}

	wrapped := "(function(){\n" + fragment + "\n})()"

	if err := checkStatic(wrapped, opts.Allowed); err != nil {
		return nil, err
	}

	vm := goja.New()
	for name := range forbiddenIdentifiers {
		_ = vm.GlobalObject().Delete(name)
	}

	for k, v := range opts.Vars {
		if err := vm.Set(k, v); err != nil {
			return nil, errRuntime("binding variable %q: %v", k, err)
		}
	}

	budget := newCallBudget(opts.CallBudget)
	sandboxedCtx := WithInSandbox(ctx)

	var pending error
	toolsCall := func(call goja.FunctionCall) goja.Value {
		name, _ := call.Argument(0).Export().(string)

		if name == pythonExecToolName {
			pending = errSecurity("python_exec cannot be invoked from within a sandboxed code fragment")
			panic(vm.NewGoError(pending))
		}
		if ok, used := budget.take(); !ok {
			pending = errRejected("call budget of %d exceeded (attempted call #%d to %q)", budget.limit, used, name)
			panic(vm.NewGoError(pending))
		}
		if !s.invoker.IsAvailable(name) {
			pending = errRejected("tool %q is not available in this execution's registry snapshot", name)
			panic(vm.NewGoError(pending))
		}

		params, _ := call.Argument(1).Export().(map[string]interface{})
		raw, err := json.Marshal(params)
		if err != nil {
			pending = errRuntime("marshaling params for tool %q: %v", name, err)
			panic(vm.NewGoError(pending))
		}
		var roundTripped map[string]interface{}
		if err := json.Unmarshal(raw, &roundTripped); err != nil {
			pending = errRuntime("round-tripping params for tool %q: %v", name, err)
			panic(vm.NewGoError(pending))
		}

		out, err := s.invoker.Invoke(sandboxedCtx, name, roundTripped)
		if err != nil {
			pending = err
			panic(vm.NewGoError(pending))
		}
		return vm.ToValue(out)
	}

	contextObj := vm.NewObject()
	toolsObj := vm.NewObject()
	_ = toolsObj.Set("call", toolsCall)
	_ = contextObj.Set("tools", toolsObj)
	if err := vm.Set("context", contextObj); err != nil {
		return nil, errRuntime("binding context object: %v", err)
	}

	if opts.Timeout > 0 {
		timer := time.AfterFunc(opts.Timeout, func() {
			vm.Interrupt(errTimeout("code fragment exceeded its %s timeout", opts.Timeout))
		})
		defer timer.Stop()
	}

	value, runErr := vm.RunString(wrapped)
	if runErr != nil {
		if pending != nil {
			return nil, pending
		}
		if interrupted, ok := runErr.(*goja.InterruptedError); ok {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
			return nil, errTimeout("code fragment interrupted: %v", interrupted)
		}
		return nil, errRuntime("%v", runErr)
	}

	return value.Export(), nil
}
