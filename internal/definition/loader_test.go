package definition

import (
	"path/filepath"
	"testing"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	def, err := l.LoadFile("testdata/dealership/dealership.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if def.Domain != "dealership" {
		t.Errorf("Domain = %q, want dealership", def.Domain)
	}
	if def.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", def.Version)
	}
	if len(def.Tables) != 2 {
		t.Fatalf("Tables = %d, want 2", len(def.Tables))
	}
	dealers := def.Tables[0]
	if dealers.ID != "dealerships" {
		t.Errorf("Table.ID = %q, want dealerships", dealers.ID)
	}
	if got := dealers.Columns[2].Template; got != "{contact.first_name} {contact.last_name}" {
		t.Errorf("template = %q", got)
	}
	if len(def.Forms) != 2 {
		t.Fatalf("Forms = %d, want 2", len(def.Forms))
	}
	section := def.Forms[0].Fields[0]
	if section.Type != "section" || len(section.Fields) != 2 {
		t.Fatalf("first field = %+v, want section with 2 rows", section)
	}
	if section.Fields[0].Columns != 2 {
		t.Errorf("row columns = %d, want 2", section.Fields[0].Columns)
	}
	if def.Lookups[0].Cache == nil || def.Lookups[0].Cache.TTL != "10m" {
		t.Errorf("lookup cache = %+v", def.Lookups[0].Cache)
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.SourceFile != "testdata/dealership/dealership.yaml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/invalid/bad.yaml")
	if err == nil {
		t.Fatal("LoadFile() with invalid YAML should return error")
	}
}

func TestLoader_LoadAll_defaultInclude(t *testing.T) {
	l := NewLoader()
	defs, err := l.LoadAll([]string{"testdata/dealership"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	// dealership.yaml and drafts/wip.yml; README.txt is skipped.
	if len(defs) != 2 {
		t.Fatalf("LoadAll() returned %d definitions, want 2", len(defs))
	}
	if defs[0].Domain != "dealership" || defs[1].Domain != "drafts" {
		t.Errorf("domains = %q, %q; want lexical file order", defs[0].Domain, defs[1].Domain)
	}
}

func TestLoader_LoadAll_includeGlobs(t *testing.T) {
	l := NewLoader("*.yaml")
	defs, err := l.LoadAll([]string{"testdata/dealership"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("LoadAll() returned %d definitions, want 1 (top level only)", len(defs))
	}

	l = NewLoader("drafts/**/*.yml")
	defs, err = l.LoadAll([]string{"testdata/dealership"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(defs) != 1 || defs[0].Domain != "drafts" {
		t.Fatalf("LoadAll() = %+v, want only drafts", defs)
	}
}

func TestLoader_LoadAll_badPattern(t *testing.T) {
	l := NewLoader("[")
	if _, err := l.LoadAll([]string{"testdata/dealership"}); err == nil {
		t.Fatal("LoadAll() with a malformed glob should return error")
	}
}

func TestLoader_Matches(t *testing.T) {
	l := NewLoader()
	dir := "testdata/dealership"
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "dealership.yaml"), true},
		{filepath.Join(dir, "drafts", "wip.yml"), true},
		{filepath.Join(dir, "README.txt"), false},
	}
	for _, tt := range tests {
		if got := l.Matches(dir, tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoader_LoadAll_invalid_dir(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/nonexistent"})
	if err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}

func TestLoader_LoadAll_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/invalid"})
	if err == nil {
		t.Fatal("LoadAll() with invalid YAML should return error")
	}
}

func TestLoader_Checksum_deterministic(t *testing.T) {
	l := NewLoader()
	def1, _ := l.LoadFile("testdata/dealership/dealership.yaml")
	def2, _ := l.LoadFile("testdata/dealership/dealership.yaml")
	if def1.Checksum != def2.Checksum {
		t.Error("Checksum should be deterministic")
	}
}
