package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// ValidationError carries a path-qualified validation failure. Several can
// accumulate into one ValidationErrors before Validate returns.
type ValidationError struct {
	Path    string
	Message string
}

func (ve *ValidationError) Error() string {
	if ve.Path != "" {
		return fmt.Sprintf("%s: %s", ve.Path, ve.Message)
	}
	return ve.Message
}

// ValidationErrors is a non-empty set of ValidationError, itself an error.
type ValidationErrors []*ValidationError

func (ves ValidationErrors) Error() string {
	parts := make([]string, len(ves))
	for i, ve := range ves {
		parts[i] = ve.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate checks a parsed Workflow against every invariant named in
// spec.md §3–§4.5: identifier pattern, semver shape, step-id uniqueness,
// depends_on referencing only earlier steps (so declaration order always
// forms a DAG), output/outputs exclusivity, and well-formedness of input
// and output specs.
func Validate(wf *Workflow) error {
	var errs ValidationErrors

	addf := func(path, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if wf.Name != "" && !namePattern.MatchString(wf.Name) {
		addf("name", "must match pattern %s, got %q", namePattern.String(), wf.Name)
	}

	if wf.Version == "" {
		addf("version", "is required")
	} else if _, err := semver.NewVersion(wf.Version); err != nil {
		addf("version", "must be a valid semver-like string: %v", err)
	}

	if wf.Packages != nil {
		switch wf.Packages.Profile {
		case "", ProfileMinimal, ProfileStandard, ProfileDataScience:
		default:
			addf("packages.profile", "must be one of minimal, standard, data_science, got %q", wf.Packages.Profile)
		}
	}

	if len(wf.Steps) == 0 {
		addf("steps", "must be a non-empty list")
	}

	validateSteps(wf.Steps, &errs)

	for i, in := range wf.Inputs {
		validateInput(fmt.Sprintf("inputs[%d]", i), in, &errs)
	}

	hasOutput := wf.Output != ""
	hasOutputs := len(wf.Outputs) > 0
	if hasOutput && hasOutputs {
		addf("output/outputs", "exactly one of output or outputs may be present, not both")
	}
	for i, out := range wf.Outputs {
		validateOutput(fmt.Sprintf("outputs[%d]", i), out, &errs)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSteps(steps []*Step, errs *ValidationErrors) {
	seen := make(map[string]int, len(steps))

	addf := func(path, format string, args ...interface{}) {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for i, step := range steps {
		path := fmt.Sprintf("steps[%d]", i)
		if step.ID == "" {
			addf(path, "id is required")
		} else if prev, dup := seen[step.ID]; dup {
			addf(path, "duplicate step id %q, already declared at steps[%d]", step.ID, prev)
		} else {
			seen[step.ID] = i
		}

		hasTool := step.Tool != ""
		hasCode := step.Code != ""
		switch {
		case hasTool && hasCode:
			addf(path, "exactly one of tool or code may be present, not both (step %q)", step.ID)
		case !hasTool && !hasCode:
			addf(path, "exactly one of tool or code must be present (step %q)", step.ID)
		}

		// on_error: retry without an explicit retry spec is permitted —
		// it falls back to workflow defaults / hard-coded defaults.
		if step.Retry != nil {
			validateRetry(path+".retry", step.Retry, errs)
		}

		for _, dep := range step.DependsOn {
			depIdx, ok := seen[dep]
			if !ok {
				// Either forward reference or unknown id — both invalid,
				// since depends_on must name an earlier declared step.
				addf(path, "depends_on %q does not refer to a step declared earlier than %q", dep, step.ID)
				continue
			}
			if depIdx >= i {
				addf(path, "depends_on %q is not earlier than step %q", dep, step.ID)
			}
		}
	}
}

func validateRetry(path string, r *Retry, errs *ValidationErrors) {
	addf := func(format string, args ...interface{}) {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if r.MaxAttempts < 1 {
		addf("max_attempts must be >= 1, got %d", r.MaxAttempts)
	}
	if r.InitialDelay < 0 {
		addf("initial_delay must be >= 0, got %g", r.InitialDelay)
	}
	if r.MaxDelay < r.InitialDelay {
		addf("max_delay (%g) must be >= initial_delay (%g)", r.MaxDelay, r.InitialDelay)
	}
	if r.BackoffMultiplier < 1.0 {
		addf("backoff_multiplier must be >= 1.0, got %g", r.BackoffMultiplier)
	}
}

func validateInput(path string, in *InputSpec, errs *ValidationErrors) {
	addf := func(format string, args ...interface{}) {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if in.Name == "" {
		addf("name is required")
	}
	switch in.Type {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
	default:
		addf("type %q is not one of string, integer, number, boolean, array, object", in.Type)
	}
	if in.Pattern != "" {
		if in.Type != TypeString && in.Type != "" {
			addf("pattern is only valid for string inputs, got type %q", in.Type)
		}
		if _, err := regexp.Compile(in.Pattern); err != nil {
			addf("pattern is not a valid regular expression: %v", err)
		}
	}
	if (in.Minimum != nil || in.Maximum != nil) && in.Type != TypeInteger && in.Type != TypeNumber {
		addf("minimum/maximum are only valid for integer or number inputs, got type %q", in.Type)
	}
	if in.hasDefault && len(in.Enum) > 0 {
		if !enumContains(in.Enum, in.Default) {
			addf("enum must contain the default value %v", in.Default)
		}
	}
}

func enumContains(enum []interface{}, v interface{}) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", v) {
			return true
		}
	}
	return false
}

func validateOutput(path string, out *OutputSpec, errs *ValidationErrors) {
	addf := func(format string, args ...interface{}) {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if out.Name == "" {
		addf("name is required")
	}
	hasFromPath := out.FromPath != ""
	hasValue := out.Value != ""
	switch {
	case hasFromPath && hasValue:
		addf("exactly one of from_path or value may be present, not both")
	case !hasFromPath && !hasValue:
		addf("exactly one of from_path or value must be present")
	}
}
