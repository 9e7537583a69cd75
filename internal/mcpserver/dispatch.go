// Package mcpserver exposes the Tool Registry and Engine as an MCP server:
// `tools/list` and `tools/call` (spec.md §6.5), reachable over stdio (the
// primary, agent-launched transport) or HTTP/WebSocket.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ploston/dael/internal/engine"
	"github.com/ploston/dael/internal/obs"
	"github.com/ploston/dael/internal/tooling"
	"github.com/rs/zerolog"
)

// Request is one JSON-RPC 2.0 call, the same wire shape as the client side
// in internal/tooling/mcpclient.go but public here since embedders of this
// package (internal/cli's serve command) construct transports around it.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the JSON-RPC 2.0 reply.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	jsonrpcVersion = "2.0"

	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// toolDescription is the MCP `tools/list` entry shape.
type toolDescription struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema interface{} `json:"inputSchema,omitempty"`
}

// Dispatcher handles the four MCP methods this server supports (initialize,
// notifications/initialized, tools/list, tools/call), shared by every
// transport (stdio, HTTP, WebSocket).
type Dispatcher struct {
	registry *tooling.Registry
	invoker  *tooling.Invoker
	engine   *engine.Engine
	logger   zerolog.Logger
	metrics  *obs.Metrics
}

// NewDispatcher constructs a Dispatcher bound to the process-wide
// registry/invoker/engine. metrics may be nil, in which case tools/call
// handling records nothing.
func NewDispatcher(registry *tooling.Registry, invoker *tooling.Invoker, eng *engine.Engine, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		invoker:  invoker,
		engine:   eng,
		logger:   logger.With().Str("component", "mcpserver").Logger(),
	}
}

// WithMetrics attaches m to the dispatcher, so every tools/call it handles
// records execution/tool-call counters and durations.
func (d *Dispatcher) WithMetrics(m *obs.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Handle dispatches one decoded Request and returns the Response to write
// back. It never returns an error itself — transport failures belong to
// the caller, protocol failures are encoded into the Response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return d.reply(req.ID, map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]interface{}{"name": "dael", "version": "1.0.0"},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		})

	case "notifications/initialized":
		return Response{} // notifications carry no response

	case "tools/list":
		return d.handleToolsList(req.ID)

	case "tools/call":
		return d.handleToolsCall(ctx, req)

	default:
		return d.errorReply(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (d *Dispatcher) handleToolsList(id *int64) Response {
	descriptors := d.registry.List()
	tools := make([]toolDescription, 0, len(descriptors))
	for _, desc := range descriptors {
		tools = append(tools, toolDescription{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.Schema,
		})
	}
	return d.reply(id, map[string]interface{}{"tools": tools})
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// handleToolsCall dispatches a `workflow:<name>` call to the Engine
// (returning the full ExecutionResult) and any other tool name to the
// Invoker, per spec.md §6.5.
func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request) Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return d.errorReply(req.ID, codeInvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
	}
	if params.Name == "" {
		return d.errorReply(req.ID, codeInvalidParams, "tools/call requires a non-empty name")
	}

	if workflowName, ok := asWorkflowCall(params.Name); ok {
		start := time.Now()
		result, err := d.engine.Execute(ctx, workflowName, params.Arguments)
		if d.metrics != nil && result != nil {
			d.metrics.ObserveExecution(workflowName, string(result.Status), time.Since(start).Seconds())
		}
		if err != nil {
			return d.errorReply(req.ID, codeInternalError, err.Error())
		}
		return d.reply(req.ID, map[string]interface{}{"content": result})
	}

	start := time.Now()
	retry := engine.DefaultConfig().DefaultRetry
	result, err := d.invoker.Invoke(ctx, params.Name, params.Arguments, retry)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if d.metrics != nil {
		d.metrics.ObserveToolCall(params.Name, outcome, 0, time.Since(start).Seconds())
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("tool", params.Name).Msg("tools/call failed")
		return d.errorReply(req.ID, codeInternalError, err.Error())
	}
	return d.reply(req.ID, map[string]interface{}{"content": result})
}

func asWorkflowCall(name string) (string, bool) {
	const prefix = "workflow:"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}

func (d *Dispatcher) reply(id *int64, result interface{}) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return d.errorReply(id, codeInternalError, err.Error())
	}
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: raw}
}

func (d *Dispatcher) errorReply(id *int64, code int, message string) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}
