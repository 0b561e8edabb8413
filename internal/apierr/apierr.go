// Package apierr maps errors onto the gateway's HTTP status contract.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func Wrap(status int, msg string, err error) *Error {
	return &Error{Status: status, Message: msg, Err: err}
}

func BadRequest(msg string) *Error   { return New(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(http.StatusForbidden, msg) }
func NotFound(msg string) *Error     { return New(http.StatusNotFound, msg) }
func Gone(msg string) *Error         { return New(http.StatusGone, msg) }
func Accepted(msg string) *Error     { return New(http.StatusAccepted, msg) }

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Status resolves the response code for err. Upstream 4xx statuses are
// propagated, everything else becomes 500.
func Status(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 500 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// Message returns the client-safe text for err. Only *Error messages are
// exposed; anything else is reported generically.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		if sc.StatusCode() == http.StatusNotFound {
			return "resource not found"
		}
		if sc.StatusCode() < 500 {
			return "upstream rejected the request"
		}
	}
	return "internal error"
}

func Write(w http.ResponseWriter, err error) {
	WriteJSON(w, Status(err), map[string]interface{}{
		"success": false,
		"error":   Message(err),
	})
}

func WriteJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
