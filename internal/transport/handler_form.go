package transport

import (
	"errors"
	"io"
	"maps"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/form"
	"github.com/pitabwire/dealerdesk/internal/metadata"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/model"
)

// Form submission outcomes, used as metric labels.
const (
	outcomeSaved   = "saved"
	outcomeInvalid = "invalid"
	outcomeBusy    = "busy"
	outcomeError   = "error"
)

// FormSessionResponse is the state of one form session.
type FormSessionResponse struct {
	ID     string         `json:"id"`
	FormID string         `json:"form_id"`
	View   model.FormView `json:"view"`
}

type openFormRequest struct {
	RecordID any `json:"record_id"`
}

// valuesRequest sets one value (name/value) or many (values).
type valuesRequest struct {
	Name   string         `json:"name"`
	Value  any            `json:"value"`
	Values map[string]any `json:"values"`
}

type toggleOptionRequest struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

type fileRequest struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *handlers) openForm(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formId")
	var req openFormRequest
	if err := decodeJSON(r, &req, h.maxBody); err != nil {
		WriteError(w, r, err)
		return
	}
	recordID := model.IdentifierOf(req.RecordID)
	if recordID == "" {
		recordID = model.IdentifierOf(r.URL.Query().Get("record_id"))
	}

	sess, err := h.forms.Open(r.Context(), formID, recordID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id := h.sessions.Forms.Create(formID, sess)
	mode := "create"
	if sess.Engine.IsEditing() {
		mode = "edit"
	}
	if h.metrics != nil {
		h.metrics.RecordFormSessionOpened(formID, mode)
	}
	r = withSession(r, id)
	observability.RequestLogger(r.Context(), h.logger).Debug("form session opened",
		zap.String("form_id", formID), zap.String("mode", mode))

	h.writeForm(w, r, id, sess, http.StatusCreated)
}

func (h *handlers) getForm(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, nil, func(*metadata.FormSession) error { return nil })
}

func (h *handlers) closeForm(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Forms.Delete(chi.URLParam(r, "sessionId")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) formValues(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	h.withForm(w, r, &req, func(s *metadata.FormSession) error {
		if req.Name != "" {
			return s.Engine.SetValue(req.Name, req.Value)
		}
		if len(req.Values) == 0 {
			return model.NewBadRequestError("name or values is required")
		}
		for _, name := range slices.Sorted(maps.Keys(req.Values)) {
			if err := s.Engine.SetValue(name, req.Values[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *handlers) formToggleOption(w http.ResponseWriter, r *http.Request) {
	var req toggleOptionRequest
	h.withForm(w, r, &req, func(s *metadata.FormSession) error {
		return s.Engine.ToggleOption(req.Name, req.Option)
	})
}

func (h *handlers) formFile(w http.ResponseWriter, r *http.Request) {
	h.withForm(w, r, nil, func(s *metadata.FormSession) error {
		name, file, err := h.readFile(r)
		if err != nil {
			return err
		}
		return s.Engine.SetFile(name, file)
	})
}

// readFile accepts either a multipart upload (fields "name" and "file") or a
// JSON body with base64 data. A JSON body without a filename or data clears
// the field.
func (h *handlers) readFile(r *http.Request) (string, *form.FileValue, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req fileRequest
		if err := decodeJSON(r, &req, h.maxBody); err != nil {
			return "", nil, err
		}
		if req.Filename == "" && len(req.Data) == 0 {
			return req.Name, nil, nil
		}
		return req.Name, form.NewFileValue(req.Filename, req.ContentType, req.Data), nil
	}

	maxBody := h.maxBody
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	if err := r.ParseMultipartForm(maxBody); err != nil {
		return "", nil, model.NewBadRequestError("invalid multipart body: " + err.Error())
	}
	name := r.FormValue("name")
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return name, nil, nil
	}
	if err != nil {
		return "", nil, model.NewBadRequestError("reading upload: " + err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBody+1))
	if err != nil {
		return "", nil, model.NewBadRequestError("reading upload: " + err.Error())
	}
	if int64(len(data)) > maxBody {
		return "", nil, model.NewBadRequestError("upload too large")
	}
	return name, form.NewFileValue(hdr.Filename, hdr.Header.Get("Content-Type"), data), nil
}

func (h *handlers) formReveal(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	h.withForm(w, r, &req, func(s *metadata.FormSession) error {
		_, err := s.Engine.ToggleReveal(req.Name)
		return err
	})
}

func (h *handlers) formSubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	r = withSession(r, id)
	entry, err := h.sessions.Forms.Get(id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	formID := entry.Owner
	logger := observability.RequestLogger(r.Context(), h.logger)

	ctx, span := observability.StartSpan(r.Context(), "form.submit",
		observability.AttrFormID.String(formID),
		observability.AttrSessionID.String(id),
	)
	start := time.Now()
	res, err := entry.Value.Engine.Submit(ctx)
	observability.EndSpanWithError(span, err)

	outcome := outcomeSaved
	switch {
	case errors.Is(err, form.ErrSubmitInProgress):
		outcome = outcomeBusy
	case err != nil:
		outcome = outcomeError
	case !res.Valid:
		outcome = outcomeInvalid
	}
	if h.metrics != nil {
		h.metrics.RecordFormSubmission(formID, outcome, time.Since(start))
		for field := range res.Errors {
			h.metrics.RecordFormValidationFailure(formID, field)
		}
	}

	if err != nil {
		if outcome == outcomeError {
			logger.Error("form submission failed", zap.String("form_id", formID), zap.Error(err))
		}
		WriteError(w, r, err)
		return
	}
	if !res.Valid {
		logger.Debug("form submission invalid", zap.String("form_id", formID), zap.Int("errors", len(res.Errors)))
		WriteValidationError(w, r, res.FieldErrors())
		return
	}

	saved, _ := entry.Value.Saved()
	logger.Info("form submitted", zap.String("form_id", formID))
	WriteJSON(w, http.StatusOK, model.SubmitResponse{Success: true, Record: saved})
}

func (h *handlers) formCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	entry, err := h.sessions.Forms.Get(id)
	if err != nil {
		WriteError(w, withSession(r, id), err)
		return
	}
	entry.Value.Engine.Cancel()
	_ = h.sessions.Forms.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// withForm resolves the form session, decodes the optional body into req,
// applies fn and writes the re-rendered form.
func (h *handlers) withForm(w http.ResponseWriter, r *http.Request, req any, fn func(*metadata.FormSession) error) {
	id := chi.URLParam(r, "sessionId")
	r = withSession(r, id)
	entry, err := h.sessions.Forms.Get(id)
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
	if err := fn(entry.Value); err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeForm(w, r, id, entry.Value, http.StatusOK)
}

func (h *handlers) writeForm(w http.ResponseWriter, r *http.Request, id string, sess *metadata.FormSession, status int) {
	view, err := sess.View()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, status, FormSessionResponse{ID: id, FormID: sess.Definition.ID, View: view})
}
