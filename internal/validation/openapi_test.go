package validation

import (
	"strings"
	"testing"
)

func dealershipSchema(t *testing.T) *OpenAPISchema {
	t.Helper()
	s, err := LoadOpenAPISchema("testdata/dealership.yaml", "Dealership")
	if err != nil {
		t.Fatalf("LoadOpenAPISchema: %v", err)
	}
	return s
}

func TestOpenAPISchema_valid(t *testing.T) {
	res := dealershipSchema(t).Validate(map[string]any{
		"name":                "Acme Motors",
		"email":               "ops@acme.test",
		"status":              "Active",
		"max_users":           5,
		"address.city":        "Nairobi",
		"address.postal_code": "",
	}, Context{})
	if !res.Valid {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestOpenAPISchema_blankRequiredReported(t *testing.T) {
	res := dealershipSchema(t).Validate(map[string]any{
		"name":  "",
		"email": "ops@acme.test",
	}, Context{})
	if res.Valid {
		t.Fatal("Valid = true, want false")
	}
	if !strings.Contains(res.Errors["name"], "missing") {
		t.Errorf("name error = %q", res.Errors["name"])
	}
}

func TestOpenAPISchema_nestedErrorsMapToDotPaths(t *testing.T) {
	res := dealershipSchema(t).Validate(map[string]any{
		"name":                "Acme Motors",
		"email":               "ops@acme.test",
		"status":              "Closed",
		"address.city":        "N",
		"address.postal_code": "abc",
	}, Context{})

	for _, field := range []string{"status", "address.city", "address.postal_code"} {
		if res.Errors[field] == "" {
			t.Errorf("missing error for %q; errors = %v", field, res.Errors)
		}
	}
}

func TestOpenAPISchema_unknownSchema(t *testing.T) {
	if _, err := LoadOpenAPISchema("testdata/dealership.yaml", "Quote"); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}

func TestOpenAPISchema_missingFile(t *testing.T) {
	if _, err := LoadOpenAPISchema("testdata/nope.yaml", "Dealership"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
