// Package http provides the JSON API server and its handlers.
//
// This file holds the helpers that turn path values, query parameters,
// headers and JSON bodies into validated arguments for the services.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"estudio/internal/core"
)

const (
	maxBodyBytes = 1 << 20
	maxActorLen  = 150
	userHeader   = "X-User"
)

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid client id %q", r.PathValue("id"))
	}
	return id, nil
}

// pathMonth parses the {month} path value. Range checking is left to the
// ledger, which reports a missing slot.
func pathMonth(r *http.Request) (int, error) {
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return 0, badRequest("invalid month %q", r.PathValue("month"))
	}
	return month, nil
}

// queryYear reads ?year=, defaulting to the current year.
func queryYear(r *http.Request, now time.Time) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" {
		return now.Year(), nil
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.ErrInvalidYear
	}
	return year, nil
}

// bodyYear prefers the year in the body and falls back to the query.
func bodyYear(year *int, r *http.Request, now time.Time) (int, error) {
	if year != nil {
		return *year, nil
	}
	return queryYear(r, now)
}

// queryLimit reads ?limit=; 0 lets the service pick its default.
func queryLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0, badRequest("invalid limit %q", v)
	}
	return limit, nil
}

// actor identifies the caller from X-User, cut to maxActorLen characters.
// Empty means the service default.
func actor(r *http.Request) string {
	a := sanitizeInput(r.Header.Get(userHeader))
	if utf8.RuneCountInString(a) > maxActorLen {
		a = string([]rune(a)[:maxActorLen])
	}
	return a
}

// parsePaymentDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
// An empty string yields the zero time, which the ledger replaces with now.
func parsePaymentDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, invalidInput(fmt.Errorf("invalid payment_date %q: use YYYY-MM-DD or RFC 3339", s))
	}
	return t, nil
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and oversized bodies. Money fields report core.ErrInvalidAmount as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, core.ErrInvalidAmount):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body exceeds %d bytes", maxErr.Limit)
		default:
			return badRequest("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
