package tooling

import (
	"context"
	"testing"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/execctx"
	"github.com/ploston/dael/internal/sandbox"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPythonExecDelegatesToSandbox(t *testing.T) {
	sb := sandbox.New(nil)
	p := NewPythonExec(sb)

	result, err := p.Call(context.Background(), map[string]interface{}{"code": "return 1 + 1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result)
}

func TestPythonExecRejectsEmptyCode(t *testing.T) {
	p := NewPythonExec(sandbox.New(nil))
	_, err := p.Call(context.Background(), map[string]interface{}{})
	require.Error(t, err)
}

func TestConfigGetSetRoundTripThroughBuiltins(t *testing.T) {
	tools := NewConfigBuiltins("", nil)
	var get, set Builtin
	for _, tool := range tools {
		switch tool.Descriptor().Name {
		case "config_get":
			get = tool
		case "config_set":
			set = tool
		}
	}
	require.NotNil(t, get)
	require.NotNil(t, set)

	ec := execctx.New(context.Background(), zerolog.Nop(), "wf", nil)
	ctx := execctx.IntoContext(context.Background(), ec)

	_, err := set.Call(ctx, map[string]interface{}{"path": "database.host", "value": "localhost"})
	require.NoError(t, err)

	v, err := get.Call(ctx, map[string]interface{}{"path": "database.host"})
	require.NoError(t, err)
	assert.Equal(t, "localhost", v)
}

func TestConfigGetMissingPathReturnsConfigPathInvalid(t *testing.T) {
	tools := NewConfigBuiltins("", nil)
	var get Builtin
	for _, tool := range tools {
		if tool.Descriptor().Name == "config_get" {
			get = tool
		}
	}
	ec := execctx.New(context.Background(), zerolog.Nop(), "wf", nil)
	ctx := execctx.IntoContext(context.Background(), ec)

	_, err := get.Call(ctx, map[string]interface{}{"path": "missing"})
	require.Error(t, err)
	derr, ok := err.(*daelerrors.Error)
	require.True(t, ok)
	assert.Equal(t, daelerrors.ConfigPathInvalid, derr.ErrCode)
}

func TestConfigValidateReportsMissingRequiredPaths(t *testing.T) {
	tools := NewConfigBuiltins("", []string{"database.host", "api.key"})
	var set, validate Builtin
	for _, tool := range tools {
		switch tool.Descriptor().Name {
		case "config_set":
			set = tool
		case "config_validate":
			validate = tool
		}
	}

	ec := execctx.New(context.Background(), zerolog.Nop(), "wf", nil)
	ctx := execctx.IntoContext(context.Background(), ec)
	_, err := set.Call(ctx, map[string]interface{}{"path": "database.host", "value": "localhost"})
	require.NoError(t, err)

	result, err := validate.Call(ctx, nil)
	require.NoError(t, err)
	out := result.(map[string]interface{})
	assert.False(t, out["valid"].(bool))
	assert.Equal(t, []string{"api.key"}, out["missing"])
}

func TestConfigDoneReturnsConfigSnapshot(t *testing.T) {
	tools := NewConfigBuiltins("", nil)
	var set, done Builtin
	for _, tool := range tools {
		switch tool.Descriptor().Name {
		case "config_set":
			set = tool
		case "config_done":
			done = tool
		}
	}

	ec := execctx.New(context.Background(), zerolog.Nop(), "wf", nil)
	ctx := execctx.IntoContext(context.Background(), ec)
	_, err := set.Call(ctx, map[string]interface{}{"path": "key", "value": "value"})
	require.NoError(t, err)

	result, err := done.Call(ctx, nil)
	require.NoError(t, err)
	snap := result.(map[string]interface{})["config"].(map[string]interface{})
	assert.Equal(t, "value", snap["key"])
}

func TestConfigLocationReflectsModeAndPath(t *testing.T) {
	tools := NewConfigBuiltins("", nil)
	var location Builtin
	for _, tool := range tools {
		if tool.Descriptor().Name == "config_location" {
			location = tool
		}
	}
	result, err := location.Call(context.Background(), nil)
	require.NoError(t, err)
	out := result.(map[string]interface{})
	assert.Equal(t, "configuration", out["mode"])
	assert.Nil(t, out["path"])

	tools2 := NewConfigBuiltins("/etc/dael/config.yaml", nil)
	for _, tool := range tools2 {
		if tool.Descriptor().Name == "config_location" {
			location = tool
		}
	}
	result2, err := location.Call(context.Background(), nil)
	require.NoError(t, err)
	out2 := result2.(map[string]interface{})
	assert.Equal(t, "running", out2["mode"])
	assert.Equal(t, "/etc/dael/config.yaml", out2["path"])
}

func TestConfigBuiltinsRequireExecutionContext(t *testing.T) {
	tools := NewConfigBuiltins("", nil)
	var get Builtin
	for _, tool := range tools {
		if tool.Descriptor().Name == "config_get" {
			get = tool
		}
	}
	_, err := get.Call(context.Background(), map[string]interface{}{"path": "x"})
	require.Error(t, err)
	derr, ok := err.(*daelerrors.Error)
	require.True(t, ok)
	assert.Equal(t, daelerrors.InternalError, derr.ErrCode)
}
