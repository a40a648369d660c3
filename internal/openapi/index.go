// Package openapi loads and indexes OpenAPI documents, providing component
// schema lookup by (document, schema name) for form validation.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// ErrSchemaNotFound is returned when a document has no component schema of
// the requested name.
var ErrSchemaNotFound = errors.New("openapi: schema not found")

// SchemaRef names a component schema inside a document. Spec is a file path,
// absolute or relative to one of the index directories.
type SchemaRef struct {
	Spec string
	Name string
}

// RefError describes a schema reference that cannot be resolved.
type RefError struct {
	Ref SchemaRef
	Err error
}

func (e RefError) Error() string {
	return fmt.Sprintf("%s#%s: %v", e.Ref.Spec, e.Ref.Name, e.Err)
}

func (e RefError) Unwrap() error { return e.Err }

// Index is an in-memory cache of parsed and validated documents keyed by
// resolved file path.
type Index struct {
	dirs []string

	mu   sync.Mutex
	docs map[string]*openapi3.T
}

// NewIndex creates an empty index. Relative document paths are searched in
// dirs, in order.
func NewIndex(dirs ...string) *Index {
	return &Index{
		dirs: dirs,
		docs: make(map[string]*openapi3.T),
	}
}

// Resolve maps a document path to the file it names: absolute paths are kept,
// relative paths resolve against the first directory containing them and
// fall back to the working directory.
func (idx *Index) Resolve(spec string) string {
	if filepath.IsAbs(spec) {
		return spec
	}
	for _, dir := range idx.dirs {
		candidate := filepath.Join(dir, spec)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return spec
}

// Document returns the parsed document for spec, loading and validating it
// on first use.
func (idx *Index) Document(spec string) (*openapi3.T, error) {
	path := idx.Resolve(spec)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if doc, ok := idx.docs[path]; ok {
		return doc, nil
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading %s: %w", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("openapi: validating %s: %w", path, err)
	}

	idx.docs[path] = doc
	return doc, nil
}

// Schema returns the component schema called name in spec.
func (idx *Index) Schema(spec, name string) (*openapi3.Schema, error) {
	doc, err := idx.Document(spec)
	if err != nil {
		return nil, err
	}
	if doc.Components == nil {
		return nil, fmt.Errorf("%w: %q (document has no components)", ErrSchemaNotFound, name)
	}
	ref, ok := doc.Components.Schemas[name]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	return ref.Value, nil
}

// SchemaNames returns the component schema names of spec, sorted.
func (idx *Index) SchemaNames(spec string) ([]string, error) {
	doc, err := idx.Document(spec)
	if err != nil {
		return nil, err
	}
	if doc.Components == nil {
		return nil, nil
	}
	names := make([]string, 0, len(doc.Components.Schemas))
	for name := range doc.Components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Check resolves every reference and returns one RefError per failure.
func (idx *Index) Check(refs []SchemaRef) []RefError {
	var errs []RefError
	for _, ref := range refs {
		if _, err := idx.Schema(ref.Spec, ref.Name); err != nil {
			errs = append(errs, RefError{Ref: ref, Err: err})
		}
	}
	return errs
}

// Reset drops every cached document.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = make(map[string]*openapi3.T)
}

// Len returns the number of cached documents.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.docs)
}
