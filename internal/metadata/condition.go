package metadata

import (
	"strings"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/internal/validation"
	"github.com/pitabwire/dealerdesk/model"
)

// CompileCondition converts a show_if definition into a visibility predicate
// over flat form values. An unknown operator yields nil and false; callers
// treat the field as always visible.
func CompileCondition(c *model.ConditionDefinition) (func(map[string]any) bool, bool) {
	if c == nil || c.Field == "" {
		return nil, false
	}
	field, want := c.Field, c.Value

	switch strings.ToLower(c.Operator) {
	case "eq":
		return func(v map[string]any) bool { return equalValue(v[field], want) }, true
	case "neq":
		return func(v map[string]any) bool { return !equalValue(v[field], want) }, true
	case "in":
		candidates := listOf(want)
		return func(v map[string]any) bool {
			for _, got := range listOf(v[field]) {
				for _, c := range candidates {
					if equalValue(got, c) {
						return true
					}
				}
			}
			return false
		}, true
	case "not_empty":
		return func(v map[string]any) bool { return !validation.IsEmpty(v[field]) }, true
	case "empty":
		return func(v map[string]any) bool { return validation.IsEmpty(v[field]) }, true
	case "truthy":
		return func(v map[string]any) bool { return truthy(v[field]) }, true
	default:
		return nil, false
	}
}

// equalValue compares by display form, so 3, 3.0 and "3" are equal.
func equalValue(a, b any) bool {
	return accessor.String(a) == accessor.String(b)
}

func listOf(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s != "" && s != "false" && s != "0"
	default:
		if n, ok := accessor.Number(v); ok {
			return n != 0
		}
		return !validation.IsEmpty(v)
	}
}
