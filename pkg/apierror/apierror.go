// Package apierror defines the error taxonomy shared by every client
// operation. Errors carry a stable code independent of the transport so
// callers can branch on what went wrong without inspecting HTTP statuses
// or message strings, and so the retry layer can make consistent
// decisions regardless of which endpoint failed.
package apierror

import (
	"errors"
	"net/http"
)

// Code represents a failure category in client terms, not HTTP terms.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"  // 401: credentials missing, expired or refused
	CodeForbidden    Code = "forbidden"     // 403: authenticated but not allowed
	CodeNotFound     Code = "not_found"     // 404: resource does not exist
	CodeConflict     Code = "conflict"      // 409: concurrent modification or duplicate
	CodeInvalidInput Code = "invalid_input" // 400/422: the server rejected the request
	CodeValidation   Code = "validation"    // client-side validation failed, nothing was sent
	CodeRateLimited  Code = "rate_limited"  // 429: throttled, safe to retry after a delay
	CodeUnavailable  Code = "unavailable"   // 5xx: transient server failure
	CodeNetwork      Code = "network"       // transport failure, no status received
	CodeTimeout      Code = "timeout"       // context deadline exceeded
	CodeMFARequired  Code = "mfa_required"  // login challenge: supply a passcode or recovery code
	CodeInternal     Code = "internal"      // unexpected client-side failure (decode, invariant)
)

// Error wraps a failure with a stable code. The zero Status means the
// failure happened before any response was received.
type Error struct {
	Code      Code
	Message   string
	Status    int    // originating HTTP status, 0 when client-side
	RequestID string // X-Request-ID echoed by the server, when present
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates an error wrapping an existing one. If the wrapped error
// already carries a code, that code is preserved and only the message is
// updated, so classification survives layering.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Status: existing.Status, RequestID: existing.RequestID, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from an error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf extracts the originating HTTP status, 0 when unknown.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Retryable reports whether retrying the failed call can possibly help.
// Rate limiting, server failures and transport errors are transient; every
// other category signals a client problem that a retry cannot fix.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeRateLimited, CodeUnavailable, CodeNetwork, CodeTimeout:
		return true
	default:
		return false
	}
}

// FromStatus maps an HTTP response status to a code. Statuses the client
// has no special handling for fall into the nearest generic category.
func FromStatus(status int) Code {
	switch {
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeUnavailable
	case status >= 400:
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}
