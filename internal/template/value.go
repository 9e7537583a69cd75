// Package template implements the closed `{{ path | filter(args) }}`
// expression grammar used in step params, conditions, and workflow
// outputs.
package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueType tags the kind of value a Value holds.
type ValueType string

const (
	TypeNil    ValueType = "nil"
	TypeBool   ValueType = "bool"
	TypeNumber ValueType = "number"
	TypeString ValueType = "string"
	TypeList   ValueType = "list"
	TypeMap    ValueType = "map"
)

// Value is a tagged union over the types the template grammar can
// produce: nil, bool, float64, string, []interface{}, map[string]interface{}.
type Value struct {
	typ ValueType
	raw interface{}
}

// FromGo wraps an arbitrary Go value (as decoded from YAML/JSON) into a
// Value, normalizing integer kinds to float64 the way encoding/json does.
func FromGo(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{typ: TypeNil}
	case bool:
		return Value{typ: TypeBool, raw: t}
	case string:
		return Value{typ: TypeString, raw: t}
	case int:
		return Value{typ: TypeNumber, raw: float64(t)}
	case int64:
		return Value{typ: TypeNumber, raw: float64(t)}
	case float32:
		return Value{typ: TypeNumber, raw: float64(t)}
	case float64:
		return Value{typ: TypeNumber, raw: t}
	case []interface{}:
		return Value{typ: TypeList, raw: t}
	case map[string]interface{}:
		return Value{typ: TypeMap, raw: t}
	default:
		return Value{typ: TypeString, raw: fmt.Sprintf("%v", t)}
	}
}

// Type reports the value's kind.
func (v Value) Type() ValueType { return v.typ }

// IsNil reports whether the value is the nil/absent value.
func (v Value) IsNil() bool { return v.typ == TypeNil }

// Go returns the underlying Go value: nil, bool, float64, string,
// []interface{}, or map[string]interface{}.
func (v Value) Go() interface{} { return v.raw }

// Truthy implements the grammar's boolean coercion for conditions: nil,
// false, 0, "", empty list/map are false; everything else is true.
func (v Value) Truthy() bool {
	switch v.typ {
	case TypeNil:
		return false
	case TypeBool:
		return v.raw.(bool)
	case TypeNumber:
		return v.raw.(float64) != 0
	case TypeString:
		return v.raw.(string) != ""
	case TypeList:
		return len(v.raw.([]interface{})) > 0
	case TypeMap:
		return len(v.raw.(map[string]interface{})) > 0
	default:
		return false
	}
}

// String renders the value for string concatenation inside a mixed
// template (one that embeds `{{ }}` alongside literal text).
func (v Value) String() string {
	switch v.typ {
	case TypeNil:
		return ""
	case TypeBool:
		if v.raw.(bool) {
			return "true"
		}
		return "false"
	case TypeNumber:
		return strconv.FormatFloat(v.raw.(float64), 'g', -1, 64)
	case TypeString:
		return v.raw.(string)
	case TypeList:
		items := v.raw.([]interface{})
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = FromGo(item).String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		m := v.raw.(map[string]interface{})
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(m))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, FromGo(m[k]).String()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}
