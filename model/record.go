package model

import (
	"fmt"
	"strconv"
)

// Record is one loosely-typed entity (dealership, user, quote, ticket, ...).
// Engines operate on it generically; no entity schema is assumed.
type Record = map[string]any

// Identifier is the normalized identity of a record. Numeric and string ids
// that print the same compare equal, so a JSON-decoded 1 and a Go int 1 select
// the same row.
type Identifier string

// IdentifierOf normalizes a raw id value. A nil value yields the empty
// Identifier.
func IdentifierOf(v any) Identifier {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return Identifier(id)
	case Identifier:
		return id
	case float64:
		return Identifier(strconv.FormatFloat(id, 'f', -1, 64))
	case float32:
		return Identifier(strconv.FormatFloat(float64(id), 'f', -1, 32))
	default:
		return Identifier(fmt.Sprint(id))
	}
}

// CloneRecord returns a deep copy of r. Nested maps and slices are copied;
// other values are shared.
func CloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneRecord(t)
	case []any:
		cp := make([]any, len(t))
		for i, item := range t {
			cp[i] = cloneValue(item)
		}
		return cp
	case []string:
		cp := make([]string, len(t))
		copy(cp, t)
		return cp
	default:
		return v
	}
}
