// Package definition loads YAML table and form definitions, validates them,
// and provides a fast-lookup registry with atomic pointer swap.
package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/pitabwire/dealerdesk/model"
)

// DefaultInclude matches every YAML file below a definitions directory.
var DefaultInclude = []string{"**/*.yaml", "**/*.yml"}

// Loader scans directories for YAML definition files, parses them, and computes
// SHA-256 checksums. Only files whose path relative to the scanned directory
// matches one of the include globs are loaded.
type Loader struct {
	include []string
}

// NewLoader creates a new definition Loader. With no patterns, DefaultInclude
// is used.
func NewLoader(include ...string) *Loader {
	if len(include) == 0 {
		include = DefaultInclude
	}
	return &Loader{include: include}
}

// LoadAll recursively scans directories and parses each matching file into a
// DomainDefinition. Files are returned in lexical path order.
func (l *Loader) LoadAll(directories []string) ([]model.DomainDefinition, error) {
	var defs []model.DomainDefinition

	for _, dir := range directories {
		paths, err := l.match(dir)
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
		for _, path := range paths {
			def, err := l.LoadFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
		}
	}

	return defs, nil
}

// Matches reports whether path, relative to dir, is selected by the include
// globs.
func (l *Loader) Matches(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range l.include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (l *Loader) match(dir string) ([]string, error) {
	for _, pattern := range l.include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if l.Matches(dir, path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (model.DomainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DomainDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def model.DomainDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.DomainDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = path

	return def, nil
}
