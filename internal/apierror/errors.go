// Package apierror defines the error kinds surfaced by the meetgate HTTP API
// and their mapping to HTTP status codes.
//
// Components return *Error values for conditions a caller is expected to see
// (bad input, unknown user, rejected password). Anything else reaching the
// HTTP boundary is treated as an upstream failure and collapsed to a generic
// message by the server.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an API error.
type Kind string

// Error kinds returned by meetgate components.
const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindAmbiguousEntry     Kind = "ambiguous_entry"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindUpstream           Kind = "upstream_failure"
)

var kindStatus = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindAmbiguousEntry:     http.StatusBadRequest,
	KindInvalidCredentials: http.StatusUnauthorized,
	KindUnauthorized:       http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindUpstream:           http.StatusInternalServerError,
}

// Error is an error with a kind and a message that is safe to show to clients.
type Error struct {
	Kind    Kind   // Error classification
	Message string // Client-facing message
	Err     error  // Underlying cause, never shown to clients
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Is reports whether target is an *Error of the same kind. This lets callers
// write errors.Is(err, apierror.NotFound("")) style checks against kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a new API error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new API error with an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Constructors for the common kinds.
var (
	Validation = func(msg string) *Error {
		return New(KindValidation, msg)
	}

	NotFound = func(msg string) *Error {
		return New(KindNotFound, msg)
	}

	AmbiguousEntry = func(msg string) *Error {
		return New(KindAmbiguousEntry, msg)
	}

	InvalidCredentials = func(msg string) *Error {
		return New(KindInvalidCredentials, msg)
	}

	Unauthorized = func(msg string) *Error {
		return New(KindUnauthorized, msg)
	}

	Forbidden = func(msg string) *Error {
		return New(KindForbidden, msg)
	}

	Upstream = func(msg string, err error) *Error {
		return Wrap(KindUpstream, msg, err)
	}
)

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUpstream for errors that carry no kind.
func KindOf(err error) Kind {
	if apiErr, ok := As(err); ok {
		return apiErr.Kind
	}
	return KindUpstream
}

// StatusOf returns the HTTP status for err. Errors without a kind map to 500.
func StatusOf(err error) int {
	if apiErr, ok := As(err); ok {
		return apiErr.Status()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message for err. Upstream failures
// and untyped errors return fallback so internal details are not leaked.
func PublicMessage(err error, fallback string) string {
	apiErr, ok := As(err)
	if !ok || apiErr.Kind == KindUpstream || apiErr.Message == "" {
		return fallback
	}
	return apiErr.Message
}
