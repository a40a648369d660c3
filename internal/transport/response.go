// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the dealerdesk API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/form"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/internal/table"
	"github.com/pitabwire/dealerdesk/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:       http.StatusBadRequest,
	model.ErrNotFound:         http.StatusNotFound,
	model.ErrConflict:         http.StatusConflict,
	model.ErrValidationError:  http.StatusUnprocessableEntity,
	model.ErrRateLimited:      http.StatusTooManyRequests,
	model.ErrInternalError:    http.StatusInternalServerError,
	model.ErrStoreUnavailable: http.StatusServiceUnavailable,
	model.ErrSessionNotFound:  http.StatusNotFound,
	model.ErrSubmitInProgress: http.StatusConflict,
}

// badRequestSentinels are engine errors caused by a malformed request.
var badRequestSentinels = []error{
	form.ErrUnknownField,
	form.ErrWrongKind,
	form.ErrUnknownOption,
	table.ErrUnknownFilter,
	table.ErrColumnOutOfRange,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes err as an ErrorEnvelope JSON response with the matching
// HTTP status code. Envelopes anywhere in the chain are used as is; known
// engine and store sentinels are translated; anything else becomes a generic
// 500 and is logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ee := envelopeFor(err)
	if ee.Code == model.ErrInternalError && r != nil {
		observability.RequestLogger(r.Context(), zap.L()).Error("request failed", zap.Error(err))
	}
	if r != nil && ee.TraceID == "" {
		cp := *ee
		cp.TraceID = observability.TraceIDFromContext(r.Context())
		ee = &cp
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

func envelopeFor(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	switch {
	case errors.Is(err, form.ErrSubmitInProgress):
		return model.NewSubmitInProgressError()
	case errors.Is(err, store.ErrNotFound):
		return model.NewNotFoundError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewStoreUnavailableError()
	}
	for _, sentinel := range badRequestSentinels {
		if errors.Is(err, sentinel) {
			return model.NewBadRequestError(err.Error())
		}
	}
	return model.NewInternalError()
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, model.NewNotFoundError(msg))
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, r *http.Request, details []model.FieldError) {
	WriteError(w, r, model.NewValidationError(details))
}
