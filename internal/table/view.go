package table

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/model"
)

func recordID(r model.Record, idField string) model.Identifier {
	return model.IdentifierOf(accessor.Get(r, idField))
}

// matchesSearch reports whether some search key's stringified value contains
// term, case-insensitively. An empty term matches everything; a non-empty term
// with no keys matches nothing.
func matchesSearch(r model.Record, keys []string, term string) bool {
	if term == "" {
		return true
	}
	needle := strings.ToLower(term)
	for _, key := range keys {
		if strings.Contains(strings.ToLower(accessor.String(accessor.Get(r, key))), needle) {
			return true
		}
	}
	return false
}

// matchesFilters reports whether every active filter equals the record's
// property, case-insensitively after trimming.
func matchesFilters(r model.Record, filters map[string]string) bool {
	for key, want := range filters {
		if !filterActive(want) {
			continue
		}
		got := accessor.String(accessor.Get(r, key))
		if !strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}

// compareValues orders two cell values: numerically when both are numbers,
// otherwise by their lower-cased string form with nil as "".
func compareValues(a, b any) int {
	if x, ok := accessor.Number(a); ok {
		if y, ok := accessor.Number(b); ok {
			return cmp.Compare(x, y)
		}
	}
	return strings.Compare(
		strings.ToLower(accessor.String(a)),
		strings.ToLower(accessor.String(b)),
	)
}

// Apply filters, then stably sorts data. It never mutates data.
func Apply(data []model.Record, searchKeys []string, term string, filters map[string]string, sort model.SortState) []model.Record {
	out := make([]model.Record, 0, len(data))
	for _, r := range data {
		if matchesSearch(r, searchKeys, term) && matchesFilters(r, filters) {
			out = append(out, r)
		}
	}
	if sort.Key == "" {
		return out
	}
	sign := 1
	if sort.Direction == model.SortDesc {
		sign = -1
	}
	slices.SortStableFunc(out, func(a, b model.Record) int {
		return sign * compareValues(accessor.Get(a, sort.Key), accessor.Get(b, sort.Key))
	})
	return out
}

// TotalPages returns ceil(n / perPage).
func TotalPages(n, perPage int) int {
	if perPage <= 0 || n <= 0 {
		return 0
	}
	return (n + perPage - 1) / perPage
}

// Paginate returns the 1-based page of items. Out-of-range pages are empty.
func Paginate[T any](items []T, page, perPage int) []T {
	if page < 1 || perPage <= 0 {
		return nil
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

// View derives the current filtered, sorted and paginated view.
func (e *Engine) View() model.TableView {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := Apply(e.data, e.cfg.SearchKeys, e.search, e.filters, e.sort)
	pageRows := Paginate(rows, e.page, e.cfg.ItemsPerPage)

	view := model.TableView{
		Columns:     e.headersLocked(),
		Rows:        make([]model.RowView, 0, len(pageRows)),
		Search:      e.search,
		Filters:     maps.Clone(e.filters),
		Sort:        e.sort,
		Page:        e.page,
		PageSize:    e.cfg.ItemsPerPage,
		TotalPages:  TotalPages(len(rows), e.cfg.ItemsPerPage),
		TotalCount:  len(rows),
		SelectedIDs: e.selectionLocked(),
		HighlightID: e.highlighted,
	}

	allSelected := len(pageRows) > 0
	for _, r := range pageRows {
		id := e.idOf(r)
		_, selected := e.selectedSet[id]
		if !selected {
			allSelected = false
		}
		cells := make([]any, len(e.cfg.Columns))
		for i, col := range e.cfg.Columns {
			cells[i] = col.Cell(r)
		}
		view.Rows = append(view.Rows, model.RowView{
			ID:          id,
			Cells:       cells,
			Selected:    selected,
			Highlighted: e.highlighted != "" && id == e.highlighted,
		})
	}
	view.PageSelected = allSelected
	return view
}

// Displayed returns the records on the current page.
func (e *Engine) Displayed() []model.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayedLocked()
}

func (e *Engine) displayedLocked() []model.Record {
	rows := Apply(e.data, e.cfg.SearchKeys, e.search, e.filters, e.sort)
	return Paginate(rows, e.page, e.cfg.ItemsPerPage)
}

func (e *Engine) headersLocked() []model.ColumnHeader {
	headers := make([]model.ColumnHeader, len(e.cfg.Columns))
	for i, col := range e.cfg.Columns {
		key := col.sortKey()
		h := model.ColumnHeader{
			Index:     i,
			Header:    col.Header,
			Sortable:  key != "",
			ClassName: col.ClassName,
		}
		if key != "" && key == e.sort.Key {
			h.Sorted = e.sort.Direction
		}
		headers[i] = h
	}
	return headers
}
