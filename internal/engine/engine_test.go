package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/sandbox"
	"github.com/ploston/dael/internal/tooling"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workflowRegistryWith(t *testing.T, yamlDocs ...string) *workflow.Registry {
	t.Helper()
	dir := t.TempDir()
	for i, doc := range yamlDocs {
		path := filepath.Join(dir, string(rune('a'+i))+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}
	r := workflow.NewRegistry(zerolog.Nop())
	require.NoError(t, r.LoadDir(dir))
	return r
}

// echoBuiltin is a tool step's target: it reflects its params back so
// tests can assert on what the engine rendered and passed through.
type echoBuiltin struct{}

func (echoBuiltin) Descriptor() tooling.Descriptor {
	return tooling.Descriptor{Name: "echo", Description: "echoes params"}
}

func (echoBuiltin) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return params, nil
}

// failingBuiltin always errors, with a configurable retryable code.
type failingBuiltin struct {
	name      string
	retryable bool
	calls     int
}

func (f *failingBuiltin) Descriptor() tooling.Descriptor {
	return tooling.Descriptor{Name: f.name, Description: "always fails"}
}

func (f *failingBuiltin) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	f.calls++
	code := daelerrors.ToolRejected
	if f.retryable {
		code = daelerrors.ToolUnavailable
	}
	return nil, daelerrors.New(code, "synthetic failure")
}

func newTestEngine(t *testing.T, workflows *workflow.Registry, builtins ...tooling.Builtin) (*Engine, *tooling.Invoker) {
	return newTestEngineWithBackends(t, workflows, builtins, nil)
}

func newTestEngineWithBackends(t *testing.T, workflows *workflow.Registry, builtins []tooling.Builtin, backends []tooling.Backend) (*Engine, *tooling.Invoker) {
	t.Helper()
	logger := zerolog.Nop()
	registry := tooling.NewRegistry(logger, builtins, workflows, backends)
	require.NoError(t, registry.Refresh(context.Background()))

	invoker := tooling.NewInvoker(registry, logger)
	sb := sandbox.New(&tooling.SandboxInvoker{Inv: invoker})

	config := DefaultConfig()
	config.DefaultTimeout = 5 * time.Second

	eng := New(workflows, invoker, sb, config, logger)
	invoker.SetWorkflowRunner(eng)
	return eng, invoker
}

// flakyBackend is an MCP-backend test double whose Call errors are already
// *daelerrors.Error, so the Invoker's classifyBackendError preserves their
// retryable flag (unlike a builtin failure, which always wraps to the
// non-retryable TOOL_FAILED).
type flakyBackend struct {
	id    string
	tool  string
	calls int
}

func (f *flakyBackend) ID() string { return f.id }

func (f *flakyBackend) ListTools(ctx context.Context) ([]tooling.Descriptor, error) {
	return []tooling.Descriptor{{Name: f.tool, Description: "always fails"}}, nil
}

func (f *flakyBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	f.calls++
	return nil, daelerrors.New(daelerrors.ToolUnavailable, "backend temporarily down")
}

const successWorkflowYAML = `
name: greet
version: "1.0.0"
inputs:
  - name
steps:
  - id: say_hello
    tool: echo
    params:
      message: "hello {{ inputs.name }}"
output: "{{ steps.say_hello.output.message }}"
`

func TestExecuteSuccessfulToolStep(t *testing.T) {
	workflows := workflowRegistryWith(t, successWorkflowYAML)
	eng, _ := newTestEngine(t, workflows, echoBuiltin{})

	result, err := eng.Execute(context.Background(), "greet", map[string]interface{}{"name": "ada"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "hello ada", result.Output)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "completed", result.Steps[0].Status)
	assert.NotEmpty(t, result.ExecutionID)
}

const nestedParamsWorkflowYAML = `
name: nested_params
version: "1.0.0"
inputs:
  - token
steps:
  - id: call_api
    tool: echo
    params:
      headers:
        Authorization: "Bearer {{ inputs.token }}"
      tags:
        - "static"
        - "{{ inputs.token }}"
output: "{{ steps.call_api.output.headers.Authorization }}"
`

func TestExecuteRendersTemplatesInNestedParams(t *testing.T) {
	workflows := workflowRegistryWith(t, nestedParamsWorkflowYAML)
	eng, _ := newTestEngine(t, workflows, echoBuiltin{})

	result, err := eng.Execute(context.Background(), "nested_params", map[string]interface{}{"token": "abc123"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "Bearer abc123", result.Output)

	params, ok := result.Steps[0].Output.(map[string]interface{})
	require.True(t, ok)
	tags, ok := params["tags"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"static", "abc123"}, tags)
}

const onErrorContinueYAML = `
name: continue_on_failure
version: "1.0.0"
steps:
  - id: boom
    tool: flaky
    on_error: continue
  - id: after
    tool: echo
    params:
      ok: true
output: "{{ steps.after.output.ok }}"
`

func TestExecuteOnErrorContinueSkipsStepAndProceeds(t *testing.T) {
	workflows := workflowRegistryWith(t, onErrorContinueYAML)
	flaky := &failingBuiltin{name: "flaky", retryable: false}
	eng, _ := newTestEngine(t, workflows, echoBuiltin{}, flaky)

	result, err := eng.Execute(context.Background(), "continue_on_failure", nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "skipped", result.Steps[0].Status)
	assert.Equal(t, "completed", result.Steps[1].Status)
	assert.Equal(t, true, result.Output)
}

const onErrorFailYAML = `
name: fail_fast
version: "1.0.0"
steps:
  - id: boom
    tool: flaky
    on_error: fail
  - id: unreachable
    tool: echo
`

func TestExecuteOnErrorFailStopsExecution(t *testing.T) {
	workflows := workflowRegistryWith(t, onErrorFailYAML)
	flaky := &failingBuiltin{name: "flaky", retryable: false}
	eng, _ := newTestEngine(t, workflows, echoBuiltin{}, flaky)

	result, err := eng.Execute(context.Background(), "fail_fast", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "failed", result.Steps[0].Status)
	require.NotNil(t, result.Err)
	assert.Equal(t, daelerrors.ToolFailed, result.Err.ErrCode)
}

const retryExhaustionYAML = `
name: retry_exhaustion
version: "1.0.0"
steps:
  - id: boom
    tool: flaky
    retry:
      max_attempts: 3
      initial_delay: 0.001
      max_delay: 0.01
      backoff_multiplier: 2.0
`

func TestExecuteRetryExhaustsMaxAttemptsThenFails(t *testing.T) {
	workflows := workflowRegistryWith(t, retryExhaustionYAML)
	flaky := &flakyBackend{id: "flaky-backend", tool: "flaky"}
	eng, _ := newTestEngineWithBackends(t, workflows, nil, []tooling.Backend{flaky})

	result, err := eng.Execute(context.Background(), "retry_exhaustion", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 3, flaky.calls)
}

const namedOutputsYAML = `
name: named_outputs
version: "1.0.0"
inputs:
  - name: count
    type: integer
    default: 2
steps:
  - id: compute
    code: |
      return {doubled: inputs.count * 2}
outputs:
  - name: doubled
    from_path: steps.compute.output.doubled
  - name: label
    value: "count was {{ inputs.count }}"
`

func TestExecuteNamedOutputsFromPathAndValue(t *testing.T) {
	workflows := workflowRegistryWith(t, namedOutputsYAML)
	eng, _ := newTestEngine(t, workflows)

	result, err := eng.Execute(context.Background(), "named_outputs", nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, float64(4), result.Outputs["doubled"])
	assert.Equal(t, "count was 2", result.Outputs["label"])
}

const badFromPathYAML = `
name: bad_output_path
version: "1.0.0"
steps:
  - id: compute
    code: "return 1"
outputs:
  - name: missing
    from_path: steps.compute.output.nope
`

func TestExecuteUndefinedOutputPathFailsWholeExecution(t *testing.T) {
	workflows := workflowRegistryWith(t, badFromPathYAML)
	eng, _ := newTestEngine(t, workflows)

	result, err := eng.Execute(context.Background(), "bad_output_path", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.NotNil(t, result.Err)
	assert.Equal(t, daelerrors.TemplateError, result.Err.ErrCode)
}

func TestExecuteRequiredInputMissingFailsValidation(t *testing.T) {
	workflows := workflowRegistryWith(t, successWorkflowYAML)
	eng, _ := newTestEngine(t, workflows, echoBuiltin{})

	result, err := eng.Execute(context.Background(), "greet", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.NotNil(t, result.Err)
	assert.Equal(t, daelerrors.InputInvalid, result.Err.ErrCode)
}

func TestExecuteUnknownWorkflowReturnsError(t *testing.T) {
	workflows := workflowRegistryWith(t, successWorkflowYAML)
	eng, _ := newTestEngine(t, workflows, echoBuiltin{})

	_, err := eng.Execute(context.Background(), "does_not_exist", nil)
	require.Error(t, err)
	derr, ok := err.(*daelerrors.Error)
	require.True(t, ok)
	assert.Equal(t, daelerrors.WorkflowNotFound, derr.ErrCode)
}

func TestExecuteIsIdempotentAcrossRuns(t *testing.T) {
	workflows := workflowRegistryWith(t, successWorkflowYAML)
	eng, _ := newTestEngine(t, workflows, echoBuiltin{})

	first, err := eng.Execute(context.Background(), "greet", map[string]interface{}{"name": "ada"})
	require.NoError(t, err)
	second, err := eng.Execute(context.Background(), "greet", map[string]interface{}{"name": "ada"})
	require.NoError(t, err)

	assert.Equal(t, first.Output, second.Output)
	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)
}

func TestRunWorkflowSatisfiesWorkflowRunnerForNestedInvocation(t *testing.T) {
	inner := `
name: inner
version: "1.0.0"
inputs:
  - n
steps:
  - id: noop
    tool: echo
    params:
      n: "{{ inputs.n }}"
output: "{{ steps.noop.output.n }}"
`
	outer := `
name: outer
version: "1.0.0"
steps:
  - id: call_inner
    tool: "workflow:inner"
    params:
      n: "hi"
output: "{{ steps.call_inner.output }}"
`
	workflows := workflowRegistryWith(t, inner, outer)
	eng, _ := newTestEngine(t, workflows, echoBuiltin{})

	result, err := eng.Execute(context.Background(), "outer", nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "hi", result.Output)
}
