package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pitabwire/dealerdesk/model"
)

const (
	defsDir    = "../../definitions"
	seedFile   = "../../seed/dealership.json"
	schemasDir = "../../schemas"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidate_ok(t *testing.T) {
	out, _, err := execute(t, "validate", "--schemas", schemasDir, defsDir)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok: 4 tables and forms") {
		t.Errorf("output = %q", out)
	}
}

func TestValidate_errors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("tables: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "validate", dir)
	if err == nil {
		t.Fatal("expected error for invalid definitions")
	}
	if !strings.Contains(out, "[REQUIRED] domain is required") {
		t.Errorf("output = %q", out)
	}
}

func TestValidate_unresolvedSchema(t *testing.T) {
	_, stderr, err := execute(t, "validate", "--schemas", t.TempDir(), defsDir)
	if err == nil {
		t.Fatal("expected error when the OpenAPI document cannot be found")
	}
	if !strings.Contains(stderr, "dealership.openapi.yaml#Dealership") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestValidate_json(t *testing.T) {
	out, _, err := execute(t, "validate", "--json", "--defs", defsDir, "--schemas", schemasDir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var report struct {
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(report.Errors) != 0 {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestTable_text(t *testing.T) {
	out, _, err := execute(t, "table", "dealerships",
		"--defs", defsDir, "--data", seedFile, "--filter", "status=active")
	if err != nil {
		t.Fatalf("table: %v", err)
	}

	for _, want := range []string{"Name ^", "Northside Motors", "Valley Cars", "page 1/1, 2 rows", "status=active"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Harbor Auto") {
		t.Errorf("suspended dealership should be filtered out:\n%s", out)
	}
	if strings.Index(out, "Northside Motors") > strings.Index(out, "Valley Cars") {
		t.Errorf("rows not sorted by name:\n%s", out)
	}
}

func TestTable_jsonSortTwiceIsDescending(t *testing.T) {
	out, _, err := execute(t, "table", "dealerships",
		"--defs", defsDir, "--data", seedFile, "--sort", "3", "--sort", "3", "--json")
	if err != nil {
		t.Fatalf("table: %v", err)
	}

	var view model.TableView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if view.Sort.Key != "inventory_count" || view.Sort.Direction != model.SortDesc {
		t.Errorf("sort = %+v", view.Sort)
	}
	var ids []model.Identifier
	for _, r := range view.Rows {
		ids = append(ids, r.ID)
	}
	want := []model.Identifier{"d1", "d3", "d2"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestTable_searchAndPage(t *testing.T) {
	out, _, err := execute(t, "table", "users",
		"--defs", defsDir, "--data", seedFile, "--page", "2", "--json")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	var view model.TableView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Page != 2 || view.TotalPages != 2 || len(view.Rows) != 1 {
		t.Errorf("page = %d/%d rows = %d, want 2/2 with 1 row", view.Page, view.TotalPages, len(view.Rows))
	}

	out, _, err = execute(t, "table", "users",
		"--defs", defsDir, "--data", seedFile, "--search", "hopper", "--json")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.TotalCount != 1 || view.Rows[0].ID != "u3" {
		t.Errorf("search result = %+v", view.Rows)
	}
}

func TestTable_errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown table", []string{"table", "missing", "--defs", defsDir}},
		{"malformed filter", []string{"table", "dealerships", "--defs", defsDir, "--filter", "status"}},
		{"unknown filter", []string{"table", "dealerships", "--defs", defsDir, "--filter", "color=red"}},
		{"column out of range", []string{"table", "dealerships", "--defs", defsDir, "--sort", "9"}},
		{"missing seed", []string{"table", "dealerships", "--defs", defsDir, "--data", "nope.json"}},
		{"missing argument", []string{"table"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaults_newRecord(t *testing.T) {
	out, _, err := execute(t, "defaults", "dealership-form", "--defs", defsDir)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(out), &values); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if values["status"] != "active" {
		t.Errorf("status = %v, want active", values["status"])
	}
	if values["name"] != "" {
		t.Errorf("name = %v, want empty", values["name"])
	}
	if values["inventory_count"] != float64(0) {
		t.Errorf("inventory_count = %v, want 0", values["inventory_count"])
	}
}

func TestDefaults_record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	record := `{"id": "d9", "name": "Lakeside", "status": "suspended", "address": {"city": "Shelbyville"}}`
	if err := os.WriteFile(path, []byte(record), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "defaults", "dealership-form", "--defs", defsDir, "--record", path)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(out), &values); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if values["name"] != "Lakeside" || values["address.city"] != "Shelbyville" || values["status"] != "suspended" {
		t.Errorf("values = %v", values)
	}
	if values["address.zip"] != "" {
		t.Errorf("address.zip = %v, want empty", values["address.zip"])
	}
}

func TestDefaults_unknownForm(t *testing.T) {
	if _, _, err := execute(t, "defaults", "missing", "--defs", defsDir); err == nil {
		t.Error("expected error for unknown form")
	}
}

func TestCellText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{42, "42"},
		{[]any{"a", "b"}, `["a","b"]`},
		{map[string]any{"k": 1}, `{"k":1}`},
	}
	for _, tt := range tests {
		if got := cellText(tt.in); got != tt.want {
			t.Errorf("cellText(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteTableText(t *testing.T) {
	view := model.TableView{
		Columns: []model.ColumnHeader{
			{Header: "Name"},
			{Header: "Stock", Sorted: model.SortDesc},
		},
		Rows: []model.RowView{
			{ID: "d1", Cells: []any{"Northside Motors", 42}, Selected: true},
			{ID: "d3", Cells: []any{"Valley Cars", nil}},
		},
		Page:       1,
		TotalPages: 1,
		TotalCount: 2,
		Sort:       model.SortState{Key: "inventory_count", Direction: model.SortDesc},
	}

	var buf bytes.Buffer
	if err := writeTableText(&buf, view); err != nil {
		t.Fatalf("writeTableText: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"┌", "│ ID", "Stock v", "d1*", "Northside Motors", "42", "page 1/1, 2 rows, sort inventory_count desc"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "d3*") {
		t.Errorf("unselected row marked:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-terminal output should carry no escape codes:\n%q", out)
	}
}
