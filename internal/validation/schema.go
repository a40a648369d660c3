// Package validation validates flat form values against declarative rule
// sets or OpenAPI component schemas.
package validation

import (
	"maps"
	"slices"

	"github.com/pitabwire/dealerdesk/model"
)

// FormErrorKey collects errors that cannot be attributed to a single field.
const FormErrorKey = "_form"

// InvalidMessage is reported under FormErrorKey when a schema fails without
// naming a field.
const InvalidMessage = "The submitted values are invalid"

// Context carries facts about the submission that rules may depend on.
type Context struct {
	// IsEditing is true when the form edits an existing record.
	IsEditing bool
}

// Result is the outcome of validating a values map. Errors are keyed by the
// field's dot-path.
type Result struct {
	Valid  bool
	Errors map[string]string
}

// Schema validates a flat values map keyed by dot-path.
type Schema interface {
	Validate(values map[string]any, vctx Context) Result
}

// SchemaFunc adapts a function to the Schema interface.
type SchemaFunc func(values map[string]any, vctx Context) Result

// Validate calls f.
func (f SchemaFunc) Validate(values map[string]any, vctx Context) Result {
	return f(values, vctx)
}

// Valid returns a passing result.
func Valid() Result {
	return Result{Valid: true, Errors: map[string]string{}}
}

// Invalid builds a result from field errors. An empty map is valid.
func Invalid(errs map[string]string) Result {
	if errs == nil {
		errs = map[string]string{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Reconcile builds the result for errs, a subset of r.Errors. It stays
// invalid when r was reported invalid without any field errors.
func (r Result) Reconcile(errs map[string]string) Result {
	if errs == nil {
		errs = map[string]string{}
	}
	if len(errs) == 0 && !r.Valid && len(r.Errors) == 0 {
		errs[FormErrorKey] = InvalidMessage
	}
	return Invalid(errs)
}

// FieldErrors converts the result's errors into API field errors, ordered by
// field path.
func (r Result) FieldErrors() []model.FieldError {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make([]model.FieldError, 0, len(r.Errors))
	for _, field := range slices.Sorted(maps.Keys(r.Errors)) {
		out = append(out, model.FieldError{
			Field:   field,
			Code:    "INVALID",
			Message: r.Errors[field],
		})
	}
	return out
}

// Compose runs every schema in order. The first error reported for a field
// wins. The result is valid only when every schema reported valid.
func Compose(schemas ...Schema) Schema {
	return SchemaFunc(func(values map[string]any, vctx Context) Result {
		all := Result{Valid: true, Errors: map[string]string{}}
		for _, s := range schemas {
			if s == nil {
				continue
			}
			res := s.Validate(values, vctx)
			all.Valid = all.Valid && res.Valid
			for field, msg := range res.Errors {
				if _, seen := all.Errors[field]; !seen {
					all.Errors[field] = msg
				}
			}
		}
		return all.Reconcile(maps.Clone(all.Errors))
	})
}
