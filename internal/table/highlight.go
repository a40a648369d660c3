package table

import (
	"time"

	"github.com/pitabwire/dealerdesk/model"
)

// Highlight lights up the row with id for the highlight window, then clears
// it. A different id supplied while a highlight is active restarts the window.
// Supplying the active id again is a no-op; an empty id clears immediately.
func (e *Engine) Highlight(id model.Identifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if id != "" && id == e.highlightSource && e.highlighted != "" {
		return
	}

	e.highlightGen++
	if e.highlightTimer != nil {
		e.highlightTimer.Stop()
		e.highlightTimer = nil
	}
	e.highlightSource = id
	e.highlighted = id
	if id == "" {
		return
	}

	gen := e.highlightGen
	e.highlightTimer = time.AfterFunc(e.cfg.HighlightWindow, func() {
		e.fade(gen)
	})
}

// Highlighted returns the currently highlighted id, or "".
func (e *Engine) Highlighted() model.Identifier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.highlighted
}

func (e *Engine) fade(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.highlightGen {
		return
	}
	e.highlighted = ""
	e.highlightTimer = nil
}
