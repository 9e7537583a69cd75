// Package tooling implements the Tool Registry (a federated, atomically
// swapped snapshot of every invocable tool: built-ins, workflows, and MCP
// backends) and the Tool Invoker (deadline + retry dispatch).
package tooling

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/invopop/jsonschema"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog"
)

// Mode is the registry's reported operating mode (spec.md §4.3): running
// with a valid config, or configuration when none was loaded yet.
type Mode string

const (
	ModeConfiguration Mode = "configuration"
	ModeRunning       Mode = "running"
)

// Source names where a tool's descriptor came from, for precedence
// resolution (built-ins > workflows > MCP backends).
type Source string

const (
	SourceBuiltin  Source = "builtin"
	SourceWorkflow Source = "workflow"
	SourceMCP      Source = "mcp"
)

// Descriptor is one entry in the registry snapshot: a tool name, its JSON
// Schema, and where it resolves to.
type Descriptor struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Source      Source
	BackendID   string
}

// Backend is an MCP tool source: a configured MCP server, reachable over
// stdio, HTTP, or WebSocket (internal/tooling/mcpstdio.go, mcphttp.go).
type Backend interface {
	ID() string
	ListTools(ctx context.Context) ([]Descriptor, error)
	Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error)
}

// Builtin is a statically registered tool not backed by any external
// process (python_exec, config_*).
type Builtin interface {
	Descriptor() Descriptor
	Call(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

type registeredTool struct {
	descriptor Descriptor
	backend    Backend // nil for builtins and workflow tools
	builtin    Builtin // nil unless Source == SourceBuiltin
	workflow   *workflow.Workflow
}

type snapshot struct {
	tools map[string]registeredTool
	mode  Mode
}

// Registry is the process-wide federated tool snapshot (spec.md §4.3).
type Registry struct {
	snap atomic.Pointer[snapshot]

	builtins  []Builtin
	workflows *workflow.Registry
	backends  []Backend
	logger    zerolog.Logger
}

// NewRegistry constructs a Registry. Call Refresh once backends/workflows
// are wired to populate its first snapshot.
func NewRegistry(logger zerolog.Logger, builtins []Builtin, workflows *workflow.Registry, backends []Backend) *Registry {
	r := &Registry{
		builtins:  builtins,
		workflows: workflows,
		backends:  backends,
		logger:    logger.With().Str("component", "tool_registry").Logger(),
	}
	r.snap.Store(&snapshot{tools: map[string]registeredTool{}, mode: ModeConfiguration})
	return r
}

// SetMode updates the reported mode without a full refresh.
func (r *Registry) SetMode(mode Mode) {
	old := r.snap.Load()
	next := &snapshot{tools: old.tools, mode: mode}
	r.snap.Store(next)
}

// Mode reports the registry's current operating mode.
func (r *Registry) Mode() Mode {
	return r.snap.Load().mode
}

// Refresh re-discovers tools from every source and atomically replaces the
// snapshot. Precedence on name collision: built-ins > workflows > MCP
// backends in configuration order — a later source never shadows an
// earlier one.
func (r *Registry) Refresh(ctx context.Context) error {
	tools := make(map[string]registeredTool)

	for _, b := range r.builtins {
		d := b.Descriptor()
		d.Source = SourceBuiltin
		if _, exists := tools[d.Name]; !exists {
			tools[d.Name] = registeredTool{descriptor: d, builtin: b}
		}
	}

	if r.workflows != nil {
		for _, wf := range r.workflows.List() {
			name := "workflow:" + wf.Name
			if _, exists := tools[name]; exists {
				continue
			}
			tools[name] = registeredTool{
				descriptor: Descriptor{
					Name:        name,
					Description: wf.Description,
					Schema:      schemaFromInputs(wf),
					Source:      SourceWorkflow,
				},
				workflow: wf,
			}
		}
	}

	for _, backend := range r.backends {
		descs, err := backend.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("listing tools from backend %s: %w", backend.ID(), err)
		}
		for _, d := range descs {
			if _, exists := tools[d.Name]; exists {
				continue
			}
			d.Source = SourceMCP
			d.BackendID = backend.ID()
			tools[d.Name] = registeredTool{descriptor: d, backend: backend}
		}
	}

	mode := r.snap.Load().mode
	r.snap.Store(&snapshot{tools: tools, mode: mode})
	r.logger.Info().Int("tool_count", len(tools)).Msg("tool registry refreshed")
	return nil
}

// Lookup returns the descriptor for name, visible only per the current
// mode (configuration mode exposes only builtins).
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	snap := r.snap.Load()
	t, ok := snap.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	if snap.mode == ModeConfiguration && t.descriptor.Source != SourceBuiltin {
		return Descriptor{}, false
	}
	return t.descriptor, true
}

// IsAvailable reports whether name resolves in the current snapshot/mode —
// the check the Sandbox's context.tools.call bridge consults before
// dispatch.
func (r *Registry) IsAvailable(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// List returns every visible descriptor, sorted by name.
func (r *Registry) List() []Descriptor {
	snap := r.snap.Load()
	out := make([]Descriptor, 0, len(snap.tools))
	for _, t := range snap.tools {
		if snap.mode == ModeConfiguration && t.descriptor.Source != SourceBuiltin {
			continue
		}
		out = append(out, t.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolve returns the full registeredTool (including its dispatch target)
// for the Invoker, honoring the same mode-visibility rule as Lookup.
func (r *Registry) resolve(name string) (registeredTool, bool) {
	snap := r.snap.Load()
	t, ok := snap.tools[name]
	if !ok {
		return registeredTool{}, false
	}
	if snap.mode == ModeConfiguration && t.descriptor.Source != SourceBuiltin {
		return registeredTool{}, false
	}
	return t, true
}

func schemaFromInputs(wf *workflow.Workflow) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, in := range wf.Inputs {
		prop := &jsonschema.Schema{Description: in.Description}
		switch in.Type {
		case workflow.TypeInteger:
			prop.Type = "integer"
		case workflow.TypeNumber:
			prop.Type = "number"
		case workflow.TypeBoolean:
			prop.Type = "boolean"
		case workflow.TypeArray:
			prop.Type = "array"
		case workflow.TypeObject:
			prop.Type = "object"
		default:
			prop.Type = "string"
		}
		s.Properties.Set(in.Name, prop)
		if in.Required {
			s.Required = append(s.Required, in.Name)
		}
	}
	return s
}
