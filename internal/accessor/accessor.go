// Package accessor resolves and assigns values at dot-separated paths inside
// nested records.
package accessor

import (
	"fmt"
	"strconv"
	"strings"
)

// Get walks obj one path segment at a time and returns the value found, or nil
// as soon as a segment is missing, nil, or not a map. A missing path is
// indistinguishable from a nil value.
func Get(obj any, path string) any {
	if path == "" {
		return nil
	}
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok || m == nil {
			return nil
		}
		current = m[part]
		if current == nil {
			return nil
		}
	}
	return current
}

// Set assigns value at path inside obj, creating intermediate maps as needed.
// A non-map value sitting on an intermediate segment is replaced by a map.
func Set(obj map[string]any, path string, value any) {
	if obj == nil || path == "" {
		return
	}
	parts := strings.Split(path, ".")
	current := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok || next == nil {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// Expand rebuilds a nested record from a flat map keyed by dot-paths.
func Expand(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for path, v := range flat {
		Set(out, path, v)
	}
	return out
}

// String coerces v to its display form. nil becomes "" and whole floats print
// without a fractional part, so a JSON-decoded 3 reads "3".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Number reports whether v holds a numeric value and returns it as float64.
// Numeric strings are not numbers.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
