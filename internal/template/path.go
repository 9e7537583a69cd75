package template

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolvePath walks a dotted/indexed path against root and returns its Go
// value, for the output spec's `from_path` form (spec.md §4.7 step 5) which
// resolves a path directly rather than through a `{{ }}` expression.
func ResolvePath(root map[string]interface{}, path string) (interface{}, error) {
	v, err := resolvePath(root, path)
	if err != nil {
		return nil, err
	}
	return v.Go(), nil
}

// resolvePath walks a dotted/indexed path against root, root being the
// namespace map assembled by the caller (typically
// {"inputs":..., "steps":..., "config":..., "env":...}). Array indices are
// written as a bracketed integer segment, e.g. "items[0].name".
func resolvePath(root map[string]interface{}, path string) (Value, error) {
	segments, err := splitPath(path)
	if err != nil {
		return Value{}, err
	}
	if len(segments) == 0 {
		return Value{}, fmt.Errorf("empty path")
	}

	var current interface{} = root
	for i, seg := range segments {
		switch s := seg.(type) {
		case string:
			m, ok := current.(map[string]interface{})
			if !ok {
				return Value{}, fmt.Errorf("cannot access field %q: %s is not an object", s, pathPrefix(segments, i))
			}
			next, exists := m[s]
			if !exists {
				return Value{}, fmt.Errorf("unknown path %q: field %q not found", path, s)
			}
			current = next
		case int:
			list, ok := current.([]interface{})
			if !ok {
				return Value{}, fmt.Errorf("cannot index %s: not a list", pathPrefix(segments, i))
			}
			if s < 0 || s >= len(list) {
				return Value{}, fmt.Errorf("index %d out of range for %s (length %d)", s, pathPrefix(segments, i), len(list))
			}
			current = list[s]
		}
	}

	return FromGo(current), nil
}

// splitPath tokenizes a path expression like "steps.format.result" or
// "items[0].name" into a slice of string (field) and int (index) segments.
func splitPath(path string) ([]interface{}, error) {
	var segments []interface{}
	var field strings.Builder

	flush := func() {
		if field.Len() > 0 {
			segments = append(segments, field.String())
			field.Reset()
		}
	}

	i := 0
	for i < len(path) {
		c := path[i]
		switch {
		case c == '.':
			flush()
			i++
		case c == '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end == -1 {
				return nil, fmt.Errorf("unterminated index in path %q", path)
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
			if err != nil {
				return nil, fmt.Errorf("invalid index %q in path %q", idxStr, path)
			}
			segments = append(segments, idx)
			i += end + 1
		default:
			field.WriteByte(c)
			i++
		}
	}
	flush()

	return segments, nil
}

func pathPrefix(segments []interface{}, upTo int) string {
	var b strings.Builder
	for i := 0; i < upTo; i++ {
		if i > 0 {
			b.WriteString(".")
		}
		fmt.Fprintf(&b, "%v", segments[i])
	}
	if b.Len() == 0 {
		return "<root>"
	}
	return b.String()
}
