// Package daelerrors is the canonical error registry: codes, categories,
// retryability and suggestions for every failure the engine can surface.
package daelerrors

import (
	"fmt"
)

// Category groups related error codes for reporting and routing.
type Category string

const (
	CategoryTool       Category = "TOOL"
	CategoryExecution  Category = "EXECUTION"
	CategoryValidation Category = "VALIDATION"
	CategoryWorkflow   Category = "WORKFLOW"
	CategorySystem     Category = "SYSTEM"
)

// Code enumerates every error code in the taxonomy (spec.md §7).
type Code string

const (
	ToolUnavailable Code = "TOOL_UNAVAILABLE"
	ToolTimeout     Code = "TOOL_TIMEOUT"
	ToolRejected    Code = "TOOL_REJECTED"
	ToolFailed      Code = "TOOL_FAILED"

	CodeSyntax     Code = "CODE_SYNTAX"
	CodeRuntime    Code = "CODE_RUNTIME"
	CodeTimeout    Code = "CODE_TIMEOUT"
	CodeSecurity   Code = "CODE_SECURITY"
	TemplateError  Code = "TEMPLATE_ERROR"

	InputInvalid      Code = "INPUT_INVALID"
	ParamInvalid      Code = "PARAM_INVALID"
	ConfigPathInvalid Code = "CONFIG_PATH_INVALID"

	WorkflowNotFound   Code = "WORKFLOW_NOT_FOUND"
	StepNotFound       Code = "STEP_NOT_FOUND"
	CircularDependency Code = "CIRCULAR_DEPENDENCY"
	WorkflowTimeout    Code = "WORKFLOW_TIMEOUT"

	InternalError       Code = "INTERNAL_ERROR"
	MCPConnectionFailed Code = "MCP_CONNECTION_FAILED"
	ConfigInvalid       Code = "CONFIG_INVALID"
)

// def holds the static properties of a code: its category, default
// retryability, and a suggestion template. TOOL_FAILED (retryability
// "driven by the underlying cause") defaults to false here and is
// overridden per instance via WithRetryable.
type def struct {
	category   Category
	retryable  bool
	suggestion string
}

var registry = map[Code]def{
	ToolUnavailable: {CategoryTool, true, "the backend for this tool may be temporarily down; retrying or checking backend health may help"},
	ToolTimeout:     {CategoryTool, true, "the tool call exceeded its deadline; consider raising the step timeout or retry max_attempts"},
	ToolRejected:    {CategoryTool, false, "the tool is not available in this execution's registry snapshot or sandbox whitelist"},
	ToolFailed:      {CategoryTool, false, "the underlying tool reported a failure; inspect detail for the backend's error"},

	CodeSyntax:    {CategoryExecution, false, "fix the code fragment's syntax or remove the forbidden construct"},
	CodeRuntime:   {CategoryExecution, false, "an exception was raised while evaluating the code fragment"},
	CodeTimeout:   {CategoryExecution, false, "the code fragment exceeded its wall-clock timeout; simplify the fragment or raise the step timeout"},
	CodeSecurity:  {CategoryExecution, false, "the code fragment attempted an operation blocked by the sandbox; use context.tools.call instead"},
	TemplateError: {CategoryExecution, false, "the template expression referenced an undefined path or used a filter incorrectly"},

	InputInvalid:      {CategoryValidation, false, "check the workflow's input specs against the inputs supplied to this execution"},
	ParamInvalid:      {CategoryValidation, false, "check the tool's parameter schema against the rendered params"},
	ConfigPathInvalid: {CategoryValidation, false, "the configured path does not exist or is not readable"},

	WorkflowNotFound:   {CategoryWorkflow, false, "check the workflow id against the registry's loaded workflows"},
	StepNotFound:       {CategoryWorkflow, false, "check depends_on references against declared step ids"},
	CircularDependency: {CategoryWorkflow, false, "depends_on must only reference steps declared earlier in the workflow"},
	WorkflowTimeout:    {CategoryWorkflow, false, "the workflow exceeded its defaults timeout budget"},

	InternalError:       {CategorySystem, false, "an unexpected internal error occurred; this is likely a bug"},
	MCPConnectionFailed: {CategorySystem, true, "the MCP backend process or connection could not be established; check its command/url and credentials"},
	ConfigInvalid:       {CategorySystem, false, "the configuration file failed to parse or validate"},
}

// Error is the user-visible error shape from spec.md §7.
type Error struct {
	ErrCode    Code                   `json:"code"`
	ErrCat     Category               `json:"category"`
	Message    string                 `json:"message"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Retryable  bool                   `json:"retryable"`
	cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the error's canonical code string.
func (e *Error) Code() string { return string(e.ErrCode) }

// New builds an Error for code, templating message with args (fmt.Sprintf
// semantics) and populating category/suggestion/retryable from the registry.
func New(code Code, messageFormat string, args ...interface{}) *Error {
	d, ok := registry[code]
	if !ok {
		d = def{CategorySystem, false, ""}
	}
	return &Error{
		ErrCode:    code,
		ErrCat:     d.category,
		Message:    fmt.Sprintf(messageFormat, args...),
		Suggestion: d.suggestion,
		Retryable:  d.retryable,
	}
}

// Wrap builds an Error for code around an existing error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(code Code, err error, messageFormat string, args ...interface{}) *Error {
	e := New(code, messageFormat, args...)
	e.cause = err
	return e
}

// WithDetail attaches structured detail fields and returns the same Error
// for chaining.
func (e *Error) WithDetail(detail map[string]interface{}) *Error {
	e.Detail = detail
	return e
}

// WithRetryable overrides the registry default retryability — used for
// TOOL_FAILED, whose retryability is "driven by the underlying cause"
// rather than fixed per code.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err (or a wrapped *Error within it) is
// retryable. Non-*Error values are treated as non-retryable.
func IsRetryable(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Retryable
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CategoryOf returns the category for a code, or CategorySystem if unknown.
func CategoryOf(code Code) Category {
	if d, ok := registry[code]; ok {
		return d.category
	}
	return CategorySystem
}
