package template

import (
	"encoding/json"
	"fmt"
)

// Filter is one entry in the closed filter set. args are the already
// literal-or-path-resolved argument values, in the order they appeared in
// the call.
type Filter func(input Value, args []Value) (Value, error)

// filters is the closed set the grammar permits: tojson, default, length,
// join. No workflow or sandbox surface can register additional filters —
// the grammar intentionally stays small (spec.md §4.1).
var filters = map[string]Filter{
	"tojson":  filterToJSON,
	"default": filterDefault,
	"length":  filterLength,
	"join":    filterJoin,
}

// Lookup returns the filter registered under name.
func Lookup(name string) (Filter, bool) {
	f, ok := filters[name]
	return f, ok
}

func filterToJSON(input Value, args []Value) (Value, error) {
	if len(args) != 0 {
		return Value{}, fmt.Errorf("tojson takes no arguments")
	}
	data, err := json.Marshal(input.Go())
	if err != nil {
		return Value{}, fmt.Errorf("tojson: %w", err)
	}
	return FromGo(string(data)), nil
}

func filterDefault(input Value, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("default takes exactly one argument")
	}
	if input.IsNil() {
		return args[0], nil
	}
	return input, nil
}

func filterLength(input Value, args []Value) (Value, error) {
	if len(args) != 0 {
		return Value{}, fmt.Errorf("length takes no arguments")
	}
	switch input.Type() {
	case TypeString:
		return FromGo(float64(len([]rune(input.Go().(string))))), nil
	case TypeList:
		return FromGo(float64(len(input.Go().([]interface{})))), nil
	case TypeMap:
		return FromGo(float64(len(input.Go().(map[string]interface{})))), nil
	default:
		return Value{}, fmt.Errorf("length: unsupported input type %s", input.Type())
	}
}

func filterJoin(input Value, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Type() != TypeString {
		return Value{}, fmt.Errorf("join takes exactly one string argument")
	}
	if input.Type() != TypeList {
		return Value{}, fmt.Errorf("join: input must be a list, got %s", input.Type())
	}
	sep := args[0].Go().(string)
	items := input.Go().([]interface{})
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += FromGo(item).String()
	}
	return FromGo(out), nil
}
