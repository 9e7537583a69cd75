package tooling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackendRejectsEmptyConfig(t *testing.T) {
	_, err := NewBackend(ServerConfig{ID: "x"})
	require.Error(t, err)
}

func TestNewBackendRejectsUnsupportedScheme(t *testing.T) {
	_, err := NewBackend(ServerConfig{ID: "x", URL: "ftp://example.com"})
	require.Error(t, err)
}

func TestDescriptorFromMCPToolFallsBackToObjectSchemaOnBadJSON(t *testing.T) {
	d := descriptorFromMCPTool(mcpTool{Name: "t", InputSchema: []byte("not json")}, "backend1")
	assert.Equal(t, "object", d.Schema.Type)
	assert.Equal(t, "backend1", d.BackendID)
	assert.Equal(t, SourceMCP, d.Source)
}

func TestDescriptorFromMCPToolParsesSchema(t *testing.T) {
	d := descriptorFromMCPTool(mcpTool{Name: "t", Description: "desc", InputSchema: []byte(`{"type":"object","required":["x"]}`)}, "backend1")
	assert.Equal(t, "desc", d.Description)
	assert.Equal(t, "object", d.Schema.Type)
	assert.Equal(t, []string{"x"}, d.Schema.Required)
}
