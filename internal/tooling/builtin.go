package tooling

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/execctx"
	"github.com/ploston/dael/internal/sandbox"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// PythonExec is the built-in that dispatches a raw code fragment as a
// tool call (spec.md §4.3); always rejected when invoked from inside an
// already-sandboxed evaluation (enforced by internal/sandbox itself).
type PythonExec struct {
	sb *sandbox.Sandbox
}

// NewPythonExec constructs the python_exec builtin bound to sb.
func NewPythonExec(sb *sandbox.Sandbox) *PythonExec { return &PythonExec{sb: sb} }

func (p *PythonExec) Descriptor() Descriptor {
	return Descriptor{
		Name:        "python_exec",
		Description: "Evaluate a code fragment in the sandboxed scripting runtime.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: propsOf(map[string]string{
				"code": "string",
			}),
			Required: []string{"code"},
		},
	}
}

func (p *PythonExec) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	code, _ := params["code"].(string)
	if code == "" {
		return nil, daelerrors.New(daelerrors.ParamInvalid, "python_exec requires a non-empty \"code\" string parameter")
	}
	return p.sb.Run(ctx, code, sandbox.RunOptions{})
}

// configBuiltins implement the five configuration-mode self-config tools
// (spec.md §4.3): config_get, config_set, config_validate, config_done,
// config_location. They operate on the current execution's
// ExecutionContext, threaded in via ctx.
type configGet struct{}

func (configGet) Descriptor() Descriptor {
	return Descriptor{
		Name:        "config_get",
		Description: "Read a dotted-path configuration value.",
		Schema: &jsonschema.Schema{
			Type:       "object",
			Properties: propsOf(map[string]string{"path": "string"}),
			Required:   []string{"path"},
		},
	}
}

func (configGet) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ec, ok := execctx.FromContext(ctx)
	if !ok {
		return nil, daelerrors.New(daelerrors.InternalError, "config_get called outside an execution context")
	}
	path, _ := params["path"].(string)
	v, found := ec.ConfigGet(path)
	if !found {
		return nil, daelerrors.New(daelerrors.ConfigPathInvalid, "config path %q is not set", path)
	}
	return v, nil
}

type configSet struct{}

func (configSet) Descriptor() Descriptor {
	return Descriptor{
		Name:        "config_set",
		Description: "Write a dotted-path configuration value.",
		Schema: &jsonschema.Schema{
			Type:       "object",
			Properties: propsOf(map[string]string{"path": "string", "value": "string"}),
			Required:   []string{"path", "value"},
		},
	}
}

func (configSet) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ec, ok := execctx.FromContext(ctx)
	if !ok {
		return nil, daelerrors.New(daelerrors.InternalError, "config_set called outside an execution context")
	}
	path, _ := params["path"].(string)
	if path == "" {
		return nil, daelerrors.New(daelerrors.ParamInvalid, "config_set requires a non-empty \"path\" parameter")
	}
	ec.ConfigSet(path, params["value"])
	return map[string]interface{}{"ok": true}, nil
}

type configValidate struct {
	requiredPaths []string
}

func (configValidate) Descriptor() Descriptor {
	return Descriptor{
		Name:        "config_validate",
		Description: "Report which required configuration paths are still unset.",
		Schema:      &jsonschema.Schema{Type: "object"},
	}
}

func (cv configValidate) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ec, ok := execctx.FromContext(ctx)
	if !ok {
		return nil, daelerrors.New(daelerrors.InternalError, "config_validate called outside an execution context")
	}
	var missing []string
	for _, path := range cv.requiredPaths {
		if _, found := ec.ConfigGet(path); !found {
			missing = append(missing, path)
		}
	}
	return map[string]interface{}{"missing": missing, "valid": len(missing) == 0}, nil
}

type configDone struct{}

func (configDone) Descriptor() Descriptor {
	return Descriptor{
		Name:        "config_done",
		Description: "Signal that configuration-mode self-configuration is complete.",
		Schema:      &jsonschema.Schema{Type: "object"},
	}
}

func (configDone) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ec, ok := execctx.FromContext(ctx)
	if !ok {
		return nil, daelerrors.New(daelerrors.InternalError, "config_done called outside an execution context")
	}
	return map[string]interface{}{"config": ec.ConfigSnapshot()}, nil
}

type configLocation struct {
	path string
}

func (configLocation) Descriptor() Descriptor {
	return Descriptor{
		Name:        "config_location",
		Description: "Report the filesystem path the loaded configuration came from.",
		Schema:      &jsonschema.Schema{Type: "object"},
	}
}

func (cl configLocation) Call(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if cl.path == "" {
		return map[string]interface{}{"path": nil, "mode": "configuration"}, nil
	}
	return map[string]interface{}{"path": cl.path, "mode": "running"}, nil
}

// NewConfigBuiltins constructs the five configuration-mode tools, the last
// bound to configPath (empty in configuration mode) and requiredPaths (the
// keys config_validate checks for).
func NewConfigBuiltins(configPath string, requiredPaths []string) []Builtin {
	return []Builtin{
		configGet{},
		configSet{},
		configValidate{requiredPaths: requiredPaths},
		configDone{},
		configLocation{path: configPath},
	}
}

// propsOf builds a jsonschema property set from a name→JSON-type map, for
// the small flat builtins whose params never need nested schema.
func propsOf(fields map[string]string) *orderedmap.OrderedMap[string, *jsonschema.Schema] {
	props := jsonschema.NewProperties()
	for name, typ := range fields {
		props.Set(name, &jsonschema.Schema{Type: typ})
	}
	return props
}
