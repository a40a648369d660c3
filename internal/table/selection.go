package table

import "github.com/pitabwire/dealerdesk/model"

// ToggleRow adds id to the selection, or removes it when already selected.
func (e *Engine) ToggleRow(id model.Identifier) {
	e.mutateSelection(func() bool {
		if _, ok := e.selectedSet[id]; ok {
			e.removeLocked(id)
		} else {
			e.addLocked(id)
		}
		return true
	})
}

// ToggleAllOnPage selects every row on the displayed page, or, when all of
// them are already selected, deselects exactly those rows. Selections on
// other pages are untouched.
func (e *Engine) ToggleAllOnPage() {
	e.mutateSelection(func() bool {
		page := e.displayedLocked()
		pageIDs := make([]model.Identifier, len(page))
		allSelected := len(page) > 0
		for i, r := range page {
			pageIDs[i] = e.idOf(r)
			if _, ok := e.selectedSet[pageIDs[i]]; !ok {
				allSelected = false
			}
		}
		for _, id := range pageIDs {
			if allSelected {
				e.removeLocked(id)
			} else {
				e.addLocked(id)
			}
		}
		return true
	})
}

// ClearSelection empties the selection.
func (e *Engine) ClearSelection() {
	e.mutateSelection(func() bool {
		e.selected = nil
		clear(e.selectedSet)
		return true
	})
}

// Selected returns the selected ids in selection order.
func (e *Engine) Selected() []model.Identifier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectionLocked()
}

func (e *Engine) addLocked(id model.Identifier) {
	if _, ok := e.selectedSet[id]; ok {
		return
	}
	e.selectedSet[id] = struct{}{}
	e.selected = append(e.selected, id)
}

func (e *Engine) removeLocked(id model.Identifier) {
	if _, ok := e.selectedSet[id]; !ok {
		return
	}
	delete(e.selectedSet, id)
	for i, s := range e.selected {
		if s == id {
			e.selected = append(e.selected[:i], e.selected[i+1:]...)
			break
		}
	}
}

func (e *Engine) selectionLocked() []model.Identifier {
	out := make([]model.Identifier, len(e.selected))
	copy(out, e.selected)
	return out
}

// mutateSelection applies fn under the state lock and, when fn reports a
// change, hands the resulting selection to OnSelectionChange. emitMu spans
// both steps, so callbacks receive selections in mutation order.
// OnSelectionChange must not change the selection itself.
func (e *Engine) mutateSelection(fn func() bool) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	changed := fn()
	ids := e.selectionLocked()
	e.mu.Unlock()

	if changed && e.cfg.OnSelectionChange != nil {
		e.cfg.OnSelectionChange(ids)
	}
}
