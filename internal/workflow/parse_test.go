package workflow

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validWorkflowYAML = `
name: greet
version: 1.0.0
description: says hello
inputs:
  - name: required string
  - units: metric
steps:
  - id: say_hello
    tool: echo
    params:
      message: "hello {{ inputs.name }}"
  - id: format
    depends_on: [say_hello]
    code: |
      return steps.say_hello.result.upper()
output: "{{ steps.format.result }}"
`

func TestParseBytesValidWorkflow(t *testing.T) {
	wf, err := ParseBytes([]byte(validWorkflowYAML))
	require.NoError(t, err)
	assert.Equal(t, "greet", wf.Name)
	assert.Equal(t, "1.0.0", wf.Version)
	assert.Len(t, wf.Steps, 2)
	assert.True(t, wf.HasSingleOutput())
}

func TestParseBytesRejectsUnknownFields(t *testing.T) {
	_, err := ParseBytes([]byte(`
name: greet
version: 1.0.0
steps:
  - id: a
    tool: echo
not_a_real_field: true
`))
	require.Error(t, err)
}

func TestParseBytesRejectsEmptySteps(t *testing.T) {
	_, err := ParseBytes([]byte(`
name: greet
version: 1.0.0
steps: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")
}

func TestParseBytesRejectsInvalidYAML(t *testing.T) {
	_, err := ParseBytes([]byte("not: [valid"))
	require.Error(t, err)
}

func TestParseReaderMatchesParseBytes(t *testing.T) {
	wf, err := ParseReader(strings.NewReader(validWorkflowYAML))
	require.NoError(t, err)
	assert.Equal(t, "greet", wf.Name)
}

func TestParseFileSetsSourceFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/greet.yaml"
	require.NoError(t, os.WriteFile(path, []byte(validWorkflowYAML), 0o644))

	wf, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, wf.SourceFile)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("/nonexistent/path/workflow.yaml")
	require.Error(t, err)
}
