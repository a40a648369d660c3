// Package table implements the data grid engine: search, multi-key filtering,
// type-aware stable sorting, pagination, page-scoped selection and
// highlight-then-fade over a slice of records.
package table

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/model"
)

// Defaults applied by New.
const (
	DefaultItemsPerPage    = 10
	DefaultIDField         = "id"
	DefaultHighlightWindow = 2000 * time.Millisecond
)

var (
	// ErrColumnOutOfRange is returned when a sort targets a missing column.
	ErrColumnOutOfRange = errors.New("table: column index out of range")
	// ErrUnknownFilter is returned when a filter key was never declared.
	ErrUnknownFilter = errors.New("table: unknown filter")
)

// Config is the caller-authored table definition.
type Config struct {
	Columns      []ColumnSpec
	SearchKeys   []string
	Filters      []FilterSpec
	ItemsPerPage int
	IDField      string
	DefaultSort  model.SortState

	// SelectionPolicy decides what happens to selected ids when the data set
	// is replaced: model.SelectionRetain (default) or model.SelectionPrune.
	SelectionPolicy string

	// OnSelectionChange receives the full selection after every mutation,
	// one call at a time in mutation order. It must not change the selection.
	OnSelectionChange func(ids []model.Identifier)

	HighlightWindow time.Duration
	Logger          *zap.Logger
}

// Engine owns the view state of one table instance. It is safe for concurrent
// use.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	// emitMu orders selection callbacks; it is taken before mu.
	emitMu sync.Mutex

	mu          sync.Mutex
	data        []model.Record
	search      string
	filters     map[string]string
	sort        model.SortState
	page        int
	selected    []model.Identifier
	selectedSet map[model.Identifier]struct{}

	highlightSource model.Identifier
	highlighted     model.Identifier
	highlightGen    uint64
	highlightTimer  *time.Timer
	closed          bool
}

// New creates an engine over data. Configuration mistakes are logged as
// warnings and degrade instead of failing.
func New(cfg Config, data []model.Record) *Engine {
	if cfg.ItemsPerPage <= 0 {
		cfg.ItemsPerPage = DefaultItemsPerPage
	}
	if cfg.IDField == "" {
		cfg.IDField = DefaultIDField
	}
	if cfg.HighlightWindow <= 0 {
		cfg.HighlightWindow = DefaultHighlightWindow
	}
	if cfg.SelectionPolicy == "" {
		cfg.SelectionPolicy = model.SelectionRetain
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for i, col := range cfg.Columns {
		if _, isFunc := col.Accessor.(Func); col.Sortable && isFunc && col.SortKey == "" {
			logger.Warn("sortable column has a function accessor and no sort key, sorting disabled",
				zap.Int("column", i),
				zap.String("header", col.Header),
			)
		}
	}
	if cfg.SelectionPolicy != model.SelectionRetain && cfg.SelectionPolicy != model.SelectionPrune {
		logger.Warn("unknown selection policy, retaining selection",
			zap.String("policy", cfg.SelectionPolicy),
		)
		cfg.SelectionPolicy = model.SelectionRetain
	}

	sortState := model.SortState{Direction: model.SortAsc}
	if cfg.DefaultSort.Key != "" {
		sortState.Key = cfg.DefaultSort.Key
		if cfg.DefaultSort.Direction == model.SortDesc {
			sortState.Direction = model.SortDesc
		}
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		data:        append([]model.Record(nil), data...),
		filters:     make(map[string]string),
		sort:        sortState,
		page:        1,
		selectedSet: make(map[model.Identifier]struct{}),
	}
}

// SetSearch changes the search term and resets to the first page.
func (e *Engine) SetSearch(term string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.search = term
	e.page = 1
}

// SetFilter sets a declared filter's value and resets to the first page. An
// empty value or FilterAll disables the filter.
func (e *Engine) SetFilter(key, value string) error {
	if !e.hasFilter(key) {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, key)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[key] = value
	e.page = 1
	return nil
}

func (e *Engine) hasFilter(key string) bool {
	for _, f := range e.cfg.Filters {
		if f.Key == key {
			return true
		}
	}
	return false
}

// ToggleSort reacts to a click on the column header at index. Clicking the
// sorted column flips direction; any other sortable column sorts ascending.
// Non-sortable columns are ignored. The current page is kept.
func (e *Engine) ToggleSort(index int) error {
	if index < 0 || index >= len(e.cfg.Columns) {
		return fmt.Errorf("%w: %d", ErrColumnOutOfRange, index)
	}
	key := e.cfg.Columns[index].sortKey()
	if key == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sort.Key == key {
		if e.sort.Direction == model.SortAsc {
			e.sort.Direction = model.SortDesc
		} else {
			e.sort.Direction = model.SortAsc
		}
		return nil
	}
	e.sort = model.SortState{Key: key, Direction: model.SortAsc}
	return nil
}

// SetPage moves to the 1-based page n. Values below 1 select the first page;
// pages past the end render empty.
func (e *Engine) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page = n
}

// ReplaceData swaps the underlying records. Under the prune policy, selected
// ids missing from the new data are dropped.
func (e *Engine) ReplaceData(data []model.Record) {
	e.mutateSelection(func() bool {
		e.data = append([]model.Record(nil), data...)
		if e.cfg.SelectionPolicy != model.SelectionPrune || len(e.selected) == 0 {
			return false
		}
		present := make(map[model.Identifier]struct{}, len(e.data))
		for _, r := range e.data {
			present[e.idOf(r)] = struct{}{}
		}
		changed := false
		kept := e.selected[:0:0]
		for _, id := range e.selected {
			if _, ok := present[id]; ok {
				kept = append(kept, id)
				continue
			}
			delete(e.selectedSet, id)
			changed = true
		}
		e.selected = kept
		return changed
	})
}

// Len returns the number of records in the underlying data set.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.data)
}

// Close stops any pending timers. The engine remains readable.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.highlightTimer != nil {
		e.highlightTimer.Stop()
		e.highlightTimer = nil
	}
	e.highlighted = ""
}

func (e *Engine) idOf(r model.Record) model.Identifier {
	return recordID(r, e.cfg.IDField)
}
