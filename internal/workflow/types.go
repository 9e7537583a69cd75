// Package workflow holds the immutable workflow data model (spec.md §3),
// its YAML decoding, load-time validation, and the process-wide registry
// of parsed workflows.
package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// InputType enumerates the admissible input spec types.
type InputType string

const (
	TypeString  InputType = "string"
	TypeInteger InputType = "integer"
	TypeNumber  InputType = "number"
	TypeBoolean InputType = "boolean"
	TypeArray   InputType = "array"
	TypeObject  InputType = "object"
)

// OnError is the step-level failure policy.
type OnError string

const (
	OnErrorFail     OnError = "fail"
	OnErrorContinue OnError = "continue"
	OnErrorRetry    OnError = "retry"
)

// PackageProfile names one of the three fixed sandbox import profiles.
type PackageProfile string

const (
	ProfileMinimal     PackageProfile = "minimal"
	ProfileStandard    PackageProfile = "standard"
	ProfileDataScience PackageProfile = "data_science"
)

// Workflow is the immutable root definition (spec.md §3 "Workflow").
type Workflow struct {
	Name        string        `yaml:"name" json:"name"`
	Version     string        `yaml:"version" json:"version"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Packages    *Packages     `yaml:"packages,omitempty" json:"packages,omitempty"`
	Defaults    *Defaults     `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Inputs      []*InputSpec  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps       []*Step       `yaml:"steps" json:"steps"`
	Output      string        `yaml:"output,omitempty" json:"output,omitempty"`
	Outputs     []*OutputSpec `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// SourceFile records where this workflow was loaded from, for error
	// reporting; empty for programmatically constructed workflows.
	SourceFile string `yaml:"-" json:"-"`
}

// Packages configures the sandbox's effective import allowlist.
type Packages struct {
	Profile    PackageProfile `yaml:"profile,omitempty" json:"profile,omitempty"`
	Additional []string       `yaml:"additional,omitempty" json:"additional,omitempty"`
}

// Defaults carries the workflow-level fallbacks consulted by the Engine's
// precedence chain (step > workflow defaults > system config > hard-coded).
type Defaults struct {
	Timeout *int     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	OnError OnError  `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	Retry   *Retry   `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// Retry is the spec.md §3 "Retry spec".
type Retry struct {
	MaxAttempts       int     `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	InitialDelay      float64 `yaml:"initial_delay,omitempty" json:"initial_delay,omitempty"`
	MaxDelay          float64 `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`
}

// HardDefaults are the spec.md §4.7 hard-coded fallbacks: 30s timeout,
// fail, max_attempts=3, initial_delay=1.0, max_delay=30.0,
// backoff_multiplier=2.0.
func HardDefaults() (timeoutSeconds int, onError OnError, retry Retry) {
	return 30, OnErrorFail, Retry{
		MaxAttempts:       3,
		InitialDelay:      1.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
	}
}

// InputSpec is the spec.md §3 "Input spec".
type InputSpec struct {
	Name        string      `yaml:"name" json:"name"`
	Type        InputType   `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Enum        []interface{} `yaml:"enum,omitempty" json:"enum,omitempty"`
	Pattern     string      `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Minimum     *float64    `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64    `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`

	// hasDefault tracks whether Default was explicitly present in the YAML,
	// distinct from a default value of nil.
	hasDefault bool
}

// HasDefault reports whether this input spec declared a default value.
func (is *InputSpec) HasDefault() bool { return is.hasDefault }

// UnmarshalYAML implements the three admissible element shapes named in
// spec.md §6 for one entry of the top-level `inputs` array: a bare string
// ("name" ⇒ required string), a single-key mapping ({name: default} ⇒
// optional with that default), or a single-key mapping whose value is
// itself a mapping ({name: {type: ..., ...}} ⇒ full spec).
func (is *InputSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		is.Name = value.Value
		is.Type = TypeString
		is.Required = true
		return nil
	}

	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("input entry must be a string or a single-key mapping, got %v", value.Kind)
	}

	is.Name = value.Content[0].Value
	valueNode := value.Content[1]

	if valueNode.Kind != yaml.MappingNode {
		// {name: default} shorthand — optional, default is the scalar/seq value.
		var def interface{}
		if err := valueNode.Decode(&def); err != nil {
			return fmt.Errorf("input %q: decoding default: %w", is.Name, err)
		}
		is.Default = def
		is.hasDefault = true
		is.Type = inferType(def)
		is.Required = false
		return nil
	}

	type fullSpec struct {
		Type        InputType     `yaml:"type,omitempty"`
		Required    bool          `yaml:"required,omitempty"`
		Default     interface{}   `yaml:"default,omitempty"`
		Enum        []interface{} `yaml:"enum,omitempty"`
		Pattern     string        `yaml:"pattern,omitempty"`
		Minimum     *float64      `yaml:"minimum,omitempty"`
		Maximum     *float64      `yaml:"maximum,omitempty"`
		Description string        `yaml:"description,omitempty"`
	}
	var full fullSpec
	if err := valueNode.Decode(&full); err != nil {
		return fmt.Errorf("input %q: %w", is.Name, err)
	}

	is.Type = full.Type
	if is.Type == "" {
		is.Type = TypeString
	}
	is.Default = full.Default
	is.Enum = full.Enum
	is.Pattern = full.Pattern
	is.Minimum = full.Minimum
	is.Maximum = full.Maximum
	is.Description = full.Description

	for i := 0; i+1 < len(valueNode.Content); i += 2 {
		if valueNode.Content[i].Value == "default" {
			is.hasDefault = true
		}
	}

	is.Required = full.Required || !is.hasDefault

	return nil
}

func inferType(v interface{}) InputType {
	switch v.(type) {
	case bool:
		return TypeBoolean
	case int, int64:
		return TypeInteger
	case float32, float64:
		return TypeNumber
	case []interface{}:
		return TypeArray
	case map[string]interface{}:
		return TypeObject
	default:
		return TypeString
	}
}

// Step is the spec.md §3 "Step".
type Step struct {
	ID         string                 `yaml:"id" json:"id"`
	DependsOn  []string               `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Timeout    *int                   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	OnError    OnError                `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	Retry      *Retry                 `yaml:"retry,omitempty" json:"retry,omitempty"`
	Tool       string                 `yaml:"tool,omitempty" json:"tool,omitempty"`
	Params     map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Code       string                 `yaml:"code,omitempty" json:"code,omitempty"`
}

// IsToolStep reports whether this step dispatches to a named tool.
func (s *Step) IsToolStep() bool { return s.Tool != "" }

// IsCodeStep reports whether this step dispatches to the sandbox.
func (s *Step) IsCodeStep() bool { return s.Code != "" }

// OutputSpec is the spec.md §3 "Output spec".
type OutputSpec struct {
	Name        string `yaml:"name" json:"name"`
	FromPath    string `yaml:"from_path,omitempty" json:"from_path,omitempty"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// HasSingleOutput reports whether this workflow uses the single `output`
// expression form rather than named `outputs`.
func (w *Workflow) HasSingleOutput() bool {
	return w.Output != "" && len(w.Outputs) == 0
}

func (w *Workflow) String() string {
	return fmt.Sprintf("%s@%s", w.Name, w.Version)
}
