package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code is a typed error code enum for consistent client-side error identification.
type Code string

const (
	// ─── Authentication ────────────────────────────────────────────────
	CodeAuthExpired        Code = "AUTH_EXPIRED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"

	// ─── Validation ────────────────────────────────────────────────────
	CodeValidation Code = "VALIDATION_ERROR"

	// ─── Resources ─────────────────────────────────────────────────────
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// ─── Transport ─────────────────────────────────────────────────────
	CodeNetwork Code = "NETWORK_ERROR"
	CodeServer  Code = "SERVER_ERROR"
)

// ErrAuthExpired is surfaced when credentials are absent or renewal is
// rejected. Callers should treat it as a forced logout.
var ErrAuthExpired = &Error{Code: CodeAuthExpired, Status: http.StatusUnauthorized, Message: "session expired, please login again"}

// Error is a structured client error carrying the code taxonomy and, when the
// failure came from the backend, the HTTP status and server message.
type Error struct {
	Code    Code
	Status  int
	Message string
	// Fields holds field-level validation messages, when present.
	Fields map[string]string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAuthExpired reports whether err carries the AUTH_EXPIRED code.
func IsAuthExpired(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == CodeAuthExpired
}

// Validation builds a validation error from translated field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Fields: fields}
}

// Network wraps a transport-level failure (connection refused, timeout, ...).
func Network(err error) *Error {
	return &Error{Code: CodeNetwork, Message: err.Error()}
}

// FromStatus maps a non-2xx backend response to a typed error. The body is
// inspected for DRF-style {"error": "..."} or {"detail": "..."} messages.
func FromStatus(status int, body []byte) *Error {
	code := CodeServer
	switch {
	case status == http.StatusUnauthorized:
		code = CodeAuthExpired
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusConflict:
		code = CodeConflict
	case status == http.StatusBadRequest:
		code = CodeValidation
	}

	return &Error{Code: code, Status: status, Message: messageFromBody(body, status)}
}

func messageFromBody(body []byte, status int) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return http.StatusText(status)
}
