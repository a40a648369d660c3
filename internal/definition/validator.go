package definition

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pitabwire/dealerdesk/internal/form"
	"github.com/pitabwire/dealerdesk/model"
)

// VError describes a single validation problem in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Report is the outcome of validating a set of definitions. Errors make the
// set unusable; Warnings describe configurations the engines tolerate.
type Report struct {
	Errors   []VError `json:"errors,omitempty"`
	Warnings []VError `json:"warnings,omitempty"`
}

// OK reports whether the definitions have no errors.
func (r Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(path, code, format string, args ...any) {
	r.Errors = append(r.Errors, VError{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) warnf(path, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, VError{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Condition operators accepted in show_if.
var validOperators = map[string]bool{
	"eq": true, "neq": true, "in": true, "not_empty": true, "empty": true, "truthy": true,
}

// Validator validates definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions together. Table, form, and lookup ids must
// be unique across every domain.
func (v *Validator) Validate(defs []model.DomainDefinition) Report {
	var r Report

	lookupIDs := make(map[string]bool)
	for _, def := range defs {
		for _, l := range def.Lookups {
			lookupIDs[l.ID] = true
		}
	}

	seen := map[string]string{}
	unique := func(path, kind, id string) {
		if id == "" {
			return
		}
		key := kind + ":" + id
		if prev, ok := seen[key]; ok {
			r.errorf(path+".id", "DUPLICATE_ID", "%s %q already declared at %s", kind, id, prev)
			return
		}
		seen[key] = path
	}

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if def.SourceFile != "" {
			prefix = def.SourceFile
		}
		if def.Domain == "" {
			r.errorf(prefix+".domain", "REQUIRED", "domain is required")
		}

		for j, t := range def.Tables {
			tp := fmt.Sprintf("%s.tables[%d]", prefix, j)
			unique(tp, "table", t.ID)
			v.validateTable(&r, tp, t)
		}
		for j, f := range def.Forms {
			fp := fmt.Sprintf("%s.forms[%d]", prefix, j)
			unique(fp, "form", f.ID)
			v.validateForm(&r, fp, f, lookupIDs)
		}
		for j, l := range def.Lookups {
			lp := fmt.Sprintf("%s.lookups[%d]", prefix, j)
			unique(lp, "lookup", l.ID)
			v.validateLookup(&r, lp, l)
		}
	}

	return r
}

func (v *Validator) validateTable(r *Report, prefix string, t model.TableDefinition) {
	if t.ID == "" {
		r.errorf(prefix+".id", "REQUIRED", "id is required")
	}
	if t.Collection == "" {
		r.errorf(prefix+".collection", "REQUIRED", "collection is required")
	}
	if len(t.Columns) == 0 {
		r.errorf(prefix+".columns", "REQUIRED", "at least one column is required")
	}
	if t.PageSize < 0 || t.PageSize > 200 {
		r.errorf(prefix+".page_size", "RANGE", "page_size must be 0-200")
	}
	switch t.SelectionPolicy {
	case "", model.SelectionRetain, model.SelectionPrune:
	default:
		r.errorf(prefix+".selection_policy", "INVALID_ENUM", "invalid selection_policy %q", t.SelectionPolicy)
	}
	switch t.SortDir {
	case "", model.SortAsc, model.SortDesc:
	default:
		r.errorf(prefix+".sort_dir", "INVALID_ENUM", "invalid sort_dir %q", t.SortDir)
	}

	sortKeys := make(map[string]bool)
	for i, c := range t.Columns {
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		if c.Header == "" {
			r.errorf(cp+".header", "REQUIRED", "header is required")
		}
		switch {
		case c.Field == "" && c.Template == "":
			r.errorf(cp, "REQUIRED", "one of field or template is required")
		case c.Field != "" && c.Template != "":
			r.errorf(cp, "AMBIGUOUS", "field and template are mutually exclusive")
		}
		if !c.Sortable {
			continue
		}
		key := c.SortKey
		if key == "" {
			key = c.Field
		}
		if key == "" {
			r.warnf(cp+".sort_key", "SORT_DISABLED", "sortable template column %q has no sort_key; sorting by it is a no-op", c.Header)
			continue
		}
		sortKeys[key] = true
	}

	if t.DefaultSort != "" && !sortKeys[t.DefaultSort] {
		r.errorf(prefix+".default_sort", "REF_NOT_FOUND", "default_sort %q is not the sort key of a sortable column", t.DefaultSort)
	}

	filterKeys := make(map[string]bool)
	for i, f := range t.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Key == "" {
			r.errorf(fp+".key", "REQUIRED", "key is required")
		} else if filterKeys[f.Key] {
			r.errorf(fp+".key", "DUPLICATE_ID", "filter %q declared twice", f.Key)
		}
		filterKeys[f.Key] = true
		if len(f.Options) == 0 {
			r.warnf(fp+".options", "EMPTY", "filter %q has no options", f.Key)
		}
	}
}

func (v *Validator) validateForm(r *Report, prefix string, f model.FormDefinition, lookupIDs map[string]bool) {
	if f.ID == "" {
		r.errorf(prefix+".id", "REQUIRED", "id is required")
	}
	if f.Collection == "" {
		r.errorf(prefix+".collection", "REQUIRED", "collection is required")
	}
	if len(f.Fields) == 0 {
		r.errorf(prefix+".fields", "REQUIRED", "at least one field is required")
	}
	if f.Schema != nil && (f.Schema.Spec == "" || f.Schema.Name == "") {
		r.errorf(prefix+".schema", "REQUIRED", "schema requires spec and name")
	}

	w := &fieldWalker{report: r, lookupIDs: lookupIDs, leaves: map[string]string{}}
	w.walk(prefix+".fields", f.Fields)

	for path, name := range w.equalsRefs {
		if _, ok := w.leaves[name]; !ok {
			r.errorf(path, "REF_NOT_FOUND", "equals references unknown field %q", name)
		}
	}
	for path, name := range w.conditionRefs {
		if _, ok := w.leaves[name]; !ok {
			r.warnf(path, "REF_NOT_FOUND", "show_if references unknown field %q", name)
		}
	}
}

type fieldWalker struct {
	report        *Report
	lookupIDs     map[string]bool
	leaves        map[string]string
	equalsRefs    map[string]string
	conditionRefs map[string]string
}

func (w *fieldWalker) walk(prefix string, fields []model.FieldDefinition) {
	for i, fd := range fields {
		fp := fmt.Sprintf("%s[%d]", prefix, i)
		kind, err := form.ParseKind(fd.Type)
		if err != nil {
			w.report.errorf(fp+".type", "INVALID_ENUM", "unknown field type %q", fd.Type)
			continue
		}

		if kind.IsGroup() {
			if kind == form.KindRow && fd.Columns != 0 && (fd.Columns < 1 || fd.Columns > 4) {
				w.report.errorf(fp+".columns", "RANGE", "row columns must be 1-4, got %d", fd.Columns)
			}
			if len(fd.Fields) == 0 {
				w.report.warnf(fp+".fields", "EMPTY", "%s has no fields", kind)
			}
			w.walk(fp+".fields", fd.Fields)
			continue
		}

		if !kind.HasValue() {
			continue
		}

		if fd.Name == "" {
			w.report.errorf(fp+".name", "REQUIRED", "name is required for %s fields", kind)
		} else {
			if prev, ok := w.leaves[fd.Name]; ok {
				w.report.warnf(fp+".name", "DUPLICATE_NAME", "field %q also declared at %s; the last declaration wins", fd.Name, prev)
			}
			w.leaves[fd.Name] = fp
		}

		switch kind {
		case form.KindSelect, form.KindCheckboxGroup:
			switch {
			case fd.Lookup != "" && len(fd.Options) > 0:
				w.report.errorf(fp, "AMBIGUOUS", "options and lookup are mutually exclusive")
			case fd.Lookup != "" && !w.lookupIDs[fd.Lookup]:
				w.report.errorf(fp+".lookup", "REF_NOT_FOUND", "lookup %q not found", fd.Lookup)
			case fd.Lookup == "" && len(fd.Options) == 0:
				w.report.warnf(fp+".options", "EMPTY", "%s field %q has no options", kind, fd.Name)
			}
		case form.KindCustom:
			if fd.Component == "" {
				w.report.errorf(fp+".component", "REQUIRED", "component is required for custom fields")
			}
		}

		if c := fd.ShowIf; c != nil {
			if c.Field == "" {
				w.report.errorf(fp+".show_if.field", "REQUIRED", "show_if.field is required")
			} else {
				w.ref(&w.conditionRefs, fp+".show_if.field", c.Field)
			}
			if !validOperators[strings.ToLower(c.Operator)] {
				w.report.errorf(fp+".show_if.operator", "INVALID_ENUM", "invalid operator %q", c.Operator)
			}
		}

		if val := fd.Validation; val != nil {
			if val.Pattern != "" {
				if _, err := regexp.Compile(val.Pattern); err != nil {
					w.report.errorf(fp+".validation.pattern", "INVALID_PATTERN", "invalid pattern: %v", err)
				}
			}
			if val.MinLength != nil && val.MaxLength != nil && *val.MinLength > *val.MaxLength {
				w.report.errorf(fp+".validation", "RANGE", "min_length exceeds max_length")
			}
			if val.Min != nil && val.Max != nil && *val.Min > *val.Max {
				w.report.errorf(fp+".validation", "RANGE", "min exceeds max")
			}
			if val.Equals != "" {
				w.ref(&w.equalsRefs, fp+".validation.equals", val.Equals)
			}
		}
	}
}

func (w *fieldWalker) ref(m *map[string]string, path, name string) {
	if *m == nil {
		*m = map[string]string{}
	}
	(*m)[path] = name
}

func (v *Validator) validateLookup(r *Report, prefix string, l model.LookupDefinition) {
	if l.ID == "" {
		r.errorf(prefix+".id", "REQUIRED", "id is required")
	}
	if l.Collection == "" {
		r.errorf(prefix+".collection", "REQUIRED", "collection is required")
	}
	if l.LabelField == "" {
		r.errorf(prefix+".label_field", "REQUIRED", "label_field is required")
	}
	if l.ValueField == "" {
		r.errorf(prefix+".value_field", "REQUIRED", "value_field is required")
	}
	if l.Cache != nil && l.Cache.TTL != "" {
		if _, err := time.ParseDuration(l.Cache.TTL); err != nil {
			r.errorf(prefix+".cache.ttl", "INVALID_DURATION", "invalid ttl %q", l.Cache.TTL)
		}
	}
}
