package table

import (
	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/model"
)

// Accessor selects a column's cell value from a record. It is a closed
// variant: Field or Func.
type Accessor interface {
	value(r model.Record) any
	path() string
}

// Field reads a (possibly dotted) property path.
type Field string

func (f Field) value(r model.Record) any { return accessor.Get(r, string(f)) }
func (f Field) path() string             { return string(f) }

// Func computes a cell value from the whole record.
type Func func(r model.Record) any

func (f Func) value(r model.Record) any {
	if f == nil {
		return nil
	}
	return f(r)
}
func (f Func) path() string { return "" }

// ColumnSpec describes one rendered column.
type ColumnSpec struct {
	Header    string
	Accessor  Accessor
	Sortable  bool
	SortKey   string
	ClassName string
}

// sortKey returns the property path used to sort by this column, or "" when
// the column cannot be sorted.
func (c ColumnSpec) sortKey() string {
	if !c.Sortable {
		return ""
	}
	if c.SortKey != "" {
		return c.SortKey
	}
	if c.Accessor == nil {
		return ""
	}
	return c.Accessor.path()
}

// Cell resolves the column's value for r.
func (c ColumnSpec) Cell(r model.Record) any {
	if c.Accessor == nil {
		return nil
	}
	return c.Accessor.value(r)
}

// Option is a selectable filter value.
type Option struct {
	Value string
	Label string
}

// FilterSpec is a select filter over one record property.
type FilterSpec struct {
	Key     string
	Label   string
	Options []Option
}

// FilterAll disables a filter.
const FilterAll = "all"

func filterActive(value string) bool {
	return value != "" && value != FilterAll
}
