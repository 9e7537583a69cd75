package engine

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/workflow"
)

// validateInputs implements spec.md §4.7 step 2: apply defaults, enforce
// required/type/enum/pattern/bounds, and coerce JSON-compatible types
// permissively but never lossily. Adapted from the teacher's
// ValidateWorkflowInputs/validateInputValue (internal/engine/validation.go)
// to DAEL's InputSpec shape.
func validateInputs(wf *workflow.Workflow, provided map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(wf.Inputs))

	for _, spec := range wf.Inputs {
		value, has := provided[spec.Name]
		if !has {
			if spec.Required {
				return nil, daelerrors.New(daelerrors.InputInvalid, "input %q is required but was not provided", spec.Name)
			}
			if spec.HasDefault() {
				out[spec.Name] = spec.Default
			}
			continue
		}

		coerced, err := coerceType(value, spec.Type)
		if err != nil {
			return nil, daelerrors.New(daelerrors.InputInvalid, "input %q: %v", spec.Name, err)
		}

		if err := checkConstraints(spec, coerced); err != nil {
			return nil, daelerrors.New(daelerrors.InputInvalid, "input %q: %v", spec.Name, err)
		}

		out[spec.Name] = coerced
	}

	return out, nil
}

func coerceType(value interface{}, t workflow.InputType) (interface{}, error) {
	switch t {
	case "", workflow.TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)

	case workflow.TypeInteger:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
			return nil, fmt.Errorf("value %v has a fractional part, cannot coerce to integer", v)
		default:
			return nil, fmt.Errorf("expected integer, got %T", value)
		}

	case workflow.TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", value)
		}

	case workflow.TypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)

	case workflow.TypeArray:
		if reflect.ValueOf(value).Kind() == reflect.Slice {
			return value, nil
		}
		return nil, fmt.Errorf("expected array, got %T", value)

	case workflow.TypeObject:
		if _, ok := value.(map[string]interface{}); ok {
			return value, nil
		}
		return nil, fmt.Errorf("expected object, got %T", value)

	default:
		return value, nil
	}
}

func checkConstraints(spec *workflow.InputSpec, value interface{}) error {
	if spec.Pattern != "" {
		if s, ok := value.(string); ok {
			matched, err := regexp.MatchString(spec.Pattern, s)
			if err != nil {
				return fmt.Errorf("invalid pattern %q: %v", spec.Pattern, err)
			}
			if !matched {
				return fmt.Errorf("value %q does not match pattern %q", s, spec.Pattern)
			}
		}
	}

	if len(spec.Enum) > 0 {
		found := false
		for _, candidate := range spec.Enum {
			if reflect.DeepEqual(candidate, value) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("value %v is not one of %v", value, spec.Enum)
		}
	}

	if spec.Minimum != nil || spec.Maximum != nil {
		num, ok := numericValue(value)
		if ok {
			if spec.Minimum != nil && num < *spec.Minimum {
				return fmt.Errorf("value %v is less than minimum %v", num, *spec.Minimum)
			}
			if spec.Maximum != nil && num > *spec.Maximum {
				return fmt.Errorf("value %v is greater than maximum %v", num, *spec.Maximum)
			}
		}
	}

	return nil
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
