package validation

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pitabwire/dealerdesk/internal/accessor"
)

// Rule is the rule set for one field. The first failing check produces the
// field's error; Message, when set, replaces every default message.
type Rule struct {
	Required         bool
	RequiredOnCreate bool
	MinLength        *int
	MaxLength        *int
	Min              *float64
	Max              *float64
	Pattern          string
	// Equals names another field whose value this field must match.
	Equals  string
	Message string
}

// RuleSchema validates values against per-field rules.
type RuleSchema struct {
	rules    map[string]Rule
	fields   []string
	patterns map[string]*regexp.Regexp
}

// NewRuleSchema compiles rules keyed by field path.
func NewRuleSchema(rules map[string]Rule) (*RuleSchema, error) {
	s := &RuleSchema{
		rules:    maps.Clone(rules),
		fields:   slices.Sorted(maps.Keys(rules)),
		patterns: make(map[string]*regexp.Regexp),
	}
	if s.rules == nil {
		s.rules = map[string]Rule{}
	}
	for field, r := range rules {
		if r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("validation: field %q: invalid pattern: %w", field, err)
		}
		s.patterns[field] = re
	}
	return s, nil
}

// Fields returns the field paths that carry rules, sorted.
func (s *RuleSchema) Fields() []string {
	return slices.Clone(s.fields)
}

// Validate implements Schema.
func (s *RuleSchema) Validate(values map[string]any, vctx Context) Result {
	errs := map[string]string{}
	for _, field := range s.fields {
		if msg := s.check(field, values, vctx); msg != "" {
			errs[field] = msg
		}
	}
	return Invalid(errs)
}

func (s *RuleSchema) check(field string, values map[string]any, vctx Context) string {
	r := s.rules[field]
	v := values[field]
	fail := func(def string) string {
		if r.Message != "" {
			return r.Message
		}
		return def
	}

	if IsEmpty(v) {
		if r.Required || (r.RequiredOnCreate && !vctx.IsEditing) {
			return fail("This field is required")
		}
		return ""
	}

	str := accessor.String(v)
	length := len([]rune(str))
	if r.MinLength != nil && length < *r.MinLength {
		return fail(fmt.Sprintf("Must be at least %d characters", *r.MinLength))
	}
	if r.MaxLength != nil && length > *r.MaxLength {
		return fail(fmt.Sprintf("Must be at most %d characters", *r.MaxLength))
	}
	if re := s.patterns[field]; re != nil && !re.MatchString(str) {
		return fail("Invalid format")
	}
	if r.Min != nil || r.Max != nil {
		n, ok := toNumber(v)
		if !ok {
			return fail("Must be a number")
		}
		if r.Min != nil && n < *r.Min {
			return fail("Must be at least " + accessor.String(*r.Min))
		}
		if r.Max != nil && n > *r.Max {
			return fail("Must be at most " + accessor.String(*r.Max))
		}
	}
	if r.Equals != "" && accessor.String(values[r.Equals]) != str {
		return fail("Must match " + r.Equals)
	}
	return ""
}

// IsEmpty reports whether v counts as no input: nil, a blank string, or an
// empty list.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func toNumber(v any) (float64, bool) {
	if n, ok := accessor.Number(v); ok {
		return n, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return n, err == nil
}
