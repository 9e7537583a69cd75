package tooling

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuiltin struct {
	name string
}

func (f fakeBuiltin) Descriptor() Descriptor {
	return Descriptor{Name: f.name, Description: "fake", Schema: &jsonschema.Schema{Type: "object"}}
}

func (f fakeBuiltin) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"called": f.name}, nil
}

type fakeBackend struct {
	id    string
	tools []Descriptor
	calls int
}

func (f *fakeBackend) ID() string { return f.id }

func (f *fakeBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
	return f.tools, nil
}

func (f *fakeBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	f.calls++
	return map[string]interface{}{"from": f.id, "name": name}, nil
}

func workflowRegistryWith(t *testing.T, yamlDocs ...string) *workflow.Registry {
	t.Helper()
	dir := t.TempDir()
	for i, doc := range yamlDocs {
		path := filepath.Join(dir, "wf"+string(rune('a'+i))+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}
	r := workflow.NewRegistry(zerolog.Nop())
	require.NoError(t, r.LoadDir(dir))
	return r
}

const sampleWorkflowYAML = `
name: greet
version: "1.0.0"
inputs:
  - name
steps:
  - id: step1
    tool: echo
    params:
      value: "{{ inputs.name }}"
output: "{{ steps.step1.result }}"
`

func TestRegistryBuiltinsAlwaysVisible(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), []Builtin{fakeBuiltin{"python_exec"}}, nil, nil)
	require.NoError(t, r.Refresh(context.Background()))

	d, ok := r.Lookup("python_exec")
	require.True(t, ok)
	assert.Equal(t, SourceBuiltin, d.Source)
}

func TestRegistryConfigurationModeHidesNonBuiltins(t *testing.T) {
	wfr := workflowRegistryWith(t, sampleWorkflowYAML)
	backend := &fakeBackend{id: "weather", tools: []Descriptor{{Name: "forecast"}}}
	r := NewRegistry(zerolog.Nop(), []Builtin{fakeBuiltin{"config_get"}}, wfr, []Backend{backend})
	require.NoError(t, r.Refresh(context.Background()))

	r.SetMode(ModeConfiguration)
	assert.True(t, r.IsAvailable("config_get"))
	assert.False(t, r.IsAvailable("workflow:greet"))
	assert.False(t, r.IsAvailable("forecast"))

	r.SetMode(ModeRunning)
	assert.True(t, r.IsAvailable("workflow:greet"))
	assert.True(t, r.IsAvailable("forecast"))
}

func TestRegistryPrecedenceBuiltinBeatsWorkflowBeatsMCP(t *testing.T) {
	wfr := workflowRegistryWith(t, `
name: echo
version: "1.0.0"
steps:
  - id: s
    tool: noop
output: "ok"
`)
	backend := &fakeBackend{id: "b1", tools: []Descriptor{{Name: "echo"}, {Name: "workflow:echo"}}}
	r := NewRegistry(zerolog.Nop(), []Builtin{fakeBuiltin{"echo"}}, wfr, []Backend{backend})
	require.NoError(t, r.Refresh(context.Background()))
	r.SetMode(ModeRunning)

	d, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, SourceBuiltin, d.Source)

	d2, ok := r.Lookup("workflow:echo")
	require.True(t, ok)
	assert.Equal(t, SourceWorkflow, d2.Source)
}

func TestRegistryListSortedAndModeFiltered(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), []Builtin{fakeBuiltin{"zzz"}, fakeBuiltin{"aaa"}}, nil, nil)
	require.NoError(t, r.Refresh(context.Background()))
	r.SetMode(ModeRunning)

	names := make([]string, 0)
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"aaa", "zzz"}, names)
}

func TestRegistryRefreshPropagatesBackendListError(t *testing.T) {
	backend := &erroringBackend{id: "broken"}
	r := NewRegistry(zerolog.Nop(), nil, nil, []Backend{backend})
	err := r.Refresh(context.Background())
	assert.Error(t, err)
}

type erroringBackend struct{ id string }

func (e *erroringBackend) ID() string { return e.id }
func (e *erroringBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
	return nil, assertErr("backend unreachable")
}
func (e *erroringBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	return nil, assertErr("unreachable")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
