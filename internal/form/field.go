package form

import (
	"maps"

	"go.uber.org/zap"
)

// Option is one choice of a select or checkbox-group field.
type Option struct {
	Value string
	Label string
}

// Field is one node of a form's field tree. Leaf fields carry a Name; group
// fields (section, row, column) carry Fields.
type Field struct {
	Kind        Kind
	Name        string
	Label       string
	Options     []Option
	Icon        string
	Placeholder string

	// ShowIf hides the field while it returns false. It receives the current
	// flat values.
	ShowIf func(values map[string]any) bool
	// OnChange runs after the field's value changes.
	OnChange func(value any, h Helpers)
	// DefaultValue seeds the field when the initial record has no value at
	// Name. nil means no default.
	DefaultValue any

	// Title labels a section.
	Title string
	// Columns is a row's grid width, 1 to 4.
	Columns int
	Fields  []Field

	// Component renders a custom field.
	Component Component
	Props     map[string]any
}

// Section returns a titled group.
func Section(title string, fields ...Field) Field {
	return Field{Kind: KindSection, Title: title, Fields: fields}
}

// Row returns an n-column grid group.
func Row(columns int, fields ...Field) Field {
	return Field{Kind: KindRow, Columns: columns, Fields: fields}
}

// Column returns a vertical stack group.
func Column(fields ...Field) Field {
	return Field{Kind: KindColumn, Fields: fields}
}

// Divider returns a layout separator.
func Divider() Field {
	return Field{Kind: KindDivider}
}

// Helpers lets a field's OnChange read and write other fields' values. Writes
// through Helpers do not trigger further OnChange callbacks. Helpers is valid
// only for the duration of the callback.
type Helpers struct {
	e *Engine
}

// Value returns the current value of name.
func (h Helpers) Value(name string) any {
	return h.e.values[name]
}

// Values returns a copy of all current values.
func (h Helpers) Values() map[string]any {
	return maps.Clone(h.e.values)
}

// SetValue writes v to name with the same coercion and error clearing as
// Engine.SetValue. Unknown names are ignored with a warning.
func (h Helpers) SetValue(name string, v any) {
	f, ok := h.e.tree.leaf(name)
	if !ok {
		h.e.logger.Warn("onChange wrote to unknown form field", zap.String("field", name))
		return
	}
	h.e.writeLocked(f, coerce(f, v))
}
