package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/session"
	"github.com/pitabwire/dealerdesk/internal/table"
	"github.com/pitabwire/dealerdesk/model"
)

// ViewResponse is the state of one table view session.
type ViewResponse struct {
	ID      string          `json:"id"`
	TableID string          `json:"table_id"`
	View    model.TableView `json:"view"`
}

type searchRequest struct {
	Term string `json:"term"`
}

type filterRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type sortRequest struct {
	Column *int `json:"column"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type idRequest struct {
	ID any `json:"id"`
}

func (h *handlers) getTable(w http.ResponseWriter, r *http.Request) {
	desc, err := h.tables.GetTable(chi.URLParam(r, "tableId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}

func (h *handlers) openView(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableId")
	engine, err := h.tables.Open(r.Context(), tableID, h.selectionObserver(r, tableID))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id := h.sessions.Views.Create(tableID, engine)
	if h.metrics != nil {
		h.metrics.RecordTableViewOpened(tableID)
	}
	observability.RequestLogger(r.Context(), h.logger).Debug("table view opened",
		zap.String("table_id", tableID), zap.String("view_id", id))

	h.writeView(w, withSession(r, id), session.Entry[*table.Engine]{ID: id, Owner: tableID, Value: engine}, http.StatusCreated)
}

func (h *handlers) selectionObserver(r *http.Request, tableID string) func([]model.Identifier) {
	logger := observability.RequestLogger(r.Context(), h.logger)
	return func(ids []model.Identifier) {
		if h.metrics != nil {
			h.metrics.RecordSelectionChange(tableID)
		}
		logger.Debug("selection changed", zap.String("table_id", tableID), zap.Int("selected", len(ids)))
	}
}

func (h *handlers) getView(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, nil, func(*table.Engine, string) error { return nil })
}

func (h *handlers) closeView(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Views.Delete(chi.URLParam(r, "viewId")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) viewSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	h.withView(w, r, &req, func(e *table.Engine, _ string) error {
		e.SetSearch(req.Term)
		return nil
	})
}

func (h *handlers) viewFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	h.withView(w, r, &req, func(e *table.Engine, _ string) error {
		if req.Key == "" {
			return model.NewBadRequestError("key is required")
		}
		return e.SetFilter(req.Key, req.Value)
	})
}

func (h *handlers) viewSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	h.withView(w, r, &req, func(e *table.Engine, _ string) error {
		if req.Column == nil {
			return model.NewBadRequestError("column is required")
		}
		return e.ToggleSort(*req.Column)
	})
}

func (h *handlers) viewPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	h.withView(w, r, &req, func(e *table.Engine, _ string) error {
		e.SetPage(req.Page)
		return nil
	})
}

func (h *handlers) viewSelect(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	h.withView(w, r, &req, func(e *table.Engine, _ string) error {
		id := model.IdentifierOf(req.ID)
		if id == "" {
			return model.NewBadRequestError("id is required")
		}
		e.ToggleRow(id)
		return nil
	})
}

func (h *handlers) viewSelectPage(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, nil, func(e *table.Engine, _ string) error {
		e.ToggleAllOnPage()
		return nil
	})
}

func (h *handlers) viewClearSelection(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, nil, func(e *table.Engine, _ string) error {
		e.ClearSelection()
		return nil
	})
}

func (h *handlers) viewHighlight(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	h.withView(w, r, &req, func(e *table.Engine, _ string) error {
		e.Highlight(model.IdentifierOf(req.ID))
		return nil
	})
}

func (h *handlers) viewReload(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, nil, func(e *table.Engine, tableID string) error {
		return h.tables.Reload(r.Context(), tableID, e)
	})
}

// withView resolves the view session, decodes the optional body into req,
// applies fn to the engine and writes the resulting view. fn also receives
// the table id the view was opened on.
func (h *handlers) withView(w http.ResponseWriter, r *http.Request, req any, fn func(*table.Engine, string) error) {
	id := chi.URLParam(r, "viewId")
	r = withSession(r, id)
	entry, err := h.sessions.Views.Get(id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if req != nil {
		if err := decodeJSON(r, req, h.maxBody); err != nil {
			WriteError(w, r, err)
			return
		}
	}
	if err := fn(entry.Value, entry.Owner); err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeView(w, r, entry, http.StatusOK)
}

func (h *handlers) writeView(w http.ResponseWriter, r *http.Request, entry session.Entry[*table.Engine], status int) {
	_, span := observability.StartSpan(r.Context(), "table.view",
		observability.AttrTableID.String(entry.Owner),
		observability.AttrViewID.String(entry.ID),
	)
	start := time.Now()
	view := entry.Value.View()
	span.End()
	if h.metrics != nil {
		h.metrics.RecordTableRender(entry.Owner, time.Since(start))
	}
	WriteJSON(w, status, ViewResponse{ID: entry.ID, TableID: entry.Owner, View: view})
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any, maxBytes int64) error {
	if r.Body == nil {
		return nil
	}
	body := io.Reader(r.Body)
	if maxBytes > 0 {
		body = io.LimitReader(r.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return model.NewBadRequestError("reading request body: " + err.Error())
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return model.NewBadRequestError("request body too large")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return model.NewBadRequestError("invalid JSON request body")
		}
		return model.NewBadRequestError("invalid request body: " + err.Error())
	}
	return nil
}

// withSession scopes the request context to a session id for logging.
func withSession(r *http.Request, id string) *http.Request {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		rctx = &model.RequestContext{}
	}
	return r.WithContext(model.WithRequestContext(r.Context(), rctx.WithSession(id)))
}
