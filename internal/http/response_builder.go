package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"estudio/internal/core"
	applog "estudio/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// requestError is a client mistake with its own status and code.
type requestError struct {
	status int
	code   string
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, code: "bad_request", err: fmt.Errorf(format, args...)}
}

func invalidInput(err error) error {
	return &requestError{status: http.StatusUnprocessableEntity, code: "validation_error", err: err}
}

// errorMapping pairs a domain sentinel with its HTTP status and code.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{core.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{core.ErrInvalidYear, http.StatusUnprocessableEntity, "invalid_year"},
	{core.ErrInvalidMonth, http.StatusUnprocessableEntity, "invalid_month"},
	{core.ErrEmptyName, http.StatusUnprocessableEntity, "validation_error"},
	{core.ErrInvalidEmail, http.StatusUnprocessableEntity, "validation_error"},
	{core.ErrAnnualCapExceeded, http.StatusConflict, "annual_cap_exceeded"},
	{core.ErrDuplicateClient, http.StatusConflict, "duplicate_client"},
	{core.ErrObligationNotFound, http.StatusNotFound, "obligation_not_found"},
	{core.ErrScheduleNotFound, http.StatusNotFound, "schedule_not_found"},
	{core.ErrClientNotFound, http.StatusNotFound, "client_not_found"},
}

// classify maps err to a status, a code and the message shown to callers.
// Unknown errors become a generic 500 so internals never leak.
func classify(err error) (int, errorResponse) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status, errorResponse{Error: reqErr.Error(), Code: reqErr.code}
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, errorResponse{Error: err.Error(), Code: m.code}
		}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal_error"}
}

// writeError answers with the JSON error body for err, logging server-side
// failures with the request logger.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.NewFields().
				WithOperation(op).
				WithError(err).
				WithErrorType(applog.ErrorTypeInternal).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()).
				ToSlice()...)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
