package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/internal/openapi"
)

// OpenAPISchema validates values against a named component schema of an
// OpenAPI document.
type OpenAPISchema struct {
	name   string
	schema *openapi3.Schema
}

// LoadOpenAPISchema loads the document at path and resolves the component
// schema called name.
func LoadOpenAPISchema(path, name string) (*OpenAPISchema, error) {
	schema, err := openapi.NewIndex().Schema(path, name)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	return NewOpenAPISchema(name, schema), nil
}

// NewOpenAPISchema wraps a resolved component schema.
func NewOpenAPISchema(name string, schema *openapi3.Schema) *OpenAPISchema {
	return &OpenAPISchema{name: name, schema: schema}
}

// Name returns the component schema name.
func (s *OpenAPISchema) Name() string { return s.name }

// Validate implements Schema. Flat values are expanded into a nested JSON
// document; blank strings are treated as absent so required properties are
// reported.
func (s *OpenAPISchema) Validate(values map[string]any, _ Context) Result {
	flat := make(map[string]any, len(values))
	for k, v := range values {
		if str, ok := v.(string); ok && str == "" {
			continue
		}
		flat[k] = v
	}

	doc, err := jsonValue(accessor.Expand(flat))
	if err != nil {
		return Invalid(map[string]string{FormErrorKey: err.Error()})
	}

	errs := map[string]string{}
	collectSchemaErrors(s.schema.VisitJSON(doc, openapi3.MultiErrors()), errs)
	return Invalid(errs)
}

// jsonValue normalizes v to the types produced by encoding/json so the schema
// visitor sees float64 numbers and []any arrays.
func jsonValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("validation: encoding values: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("validation: decoding values: %w", err)
	}
	return out, nil
}

func collectSchemaErrors(err error, errs map[string]string) {
	if err == nil {
		return
	}
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			collectSchemaErrors(e, errs)
		}
		return
	}

	field := FormErrorKey
	msg := err.Error()
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if p := strings.Join(se.JSONPointer(), "."); p != "" {
			field = p
		}
		msg = se.Reason
	}
	if _, seen := errs[field]; !seen {
		errs[field] = msg
	}
}
