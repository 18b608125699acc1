// Package errors provides the reader's error taxonomy with machine-readable codes.
//
// Usage:
//
//	// In leaf packages - return typed errors
//	if resp.StatusCode == http.StatusNotFound {
//	    return errors.Fetch(errors.FetchNotFound, "chapter not found")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrConfigurationMissing) {
//	    // prompt the user to fix settings
//	}
//
//	// Or switch on the code directly
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeFetch:
//	    case errors.CodePersistence:
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the reader.
const (
	CodeFetch                Code = "FETCH_FAILED"
	CodePersistence          Code = "PERSISTENCE_FAILED"
	CodePlayback             Code = "PLAYBACK_FAILED"
	CodeConfigurationMissing Code = "CONFIGURATION_MISSING"
	CodeNotAvailable         Code = "NOT_AVAILABLE"
	CodeValidation           Code = "VALIDATION"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInternal             Code = "INTERNAL"
)

// FetchKind classifies content fetch failures.
type FetchKind string

// Fetch failure kinds.
const (
	FetchNetwork  FetchKind = "network"
	FetchAuth     FetchKind = "auth"
	FetchNotFound FetchKind = "not_found"
	FetchUpstream FetchKind = "upstream"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConfigurationMissing, CodeNotAvailable:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Kind returns the fetch kind for fetch errors, or "" for everything else.
func (e *Error) Kind() FetchKind {
	if k, ok := e.Details.(FetchKind); ok {
		return k
	}
	return ""
}

// Sentinel errors for use with errors.Is().
var (
	ErrFetch                = &Error{Code: CodeFetch, Message: "fetch failed"}
	ErrPersistence          = &Error{Code: CodePersistence, Message: "persistence failed"}
	ErrPlayback             = &Error{Code: CodePlayback, Message: "playback failed"}
	ErrConfigurationMissing = &Error{Code: CodeConfigurationMissing, Message: "configuration missing"}
	ErrNotAvailable         = &Error{Code: CodeNotAvailable, Message: "not available"}
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInternal             = &Error{Code: CodeInternal, Message: "internal error"}
)

// Fetch creates a fetch error of the given kind.
func Fetch(kind FetchKind, msg string) *Error {
	return &Error{Code: CodeFetch, Message: msg, Details: kind}
}

// Fetchf creates a fetch error with a formatted message.
func Fetchf(kind FetchKind, format string, args ...any) *Error {
	return &Error{Code: CodeFetch, Message: fmt.Sprintf(format, args...), Details: kind}
}

// Persistence creates a persistence error.
func Persistence(msg string) *Error {
	return &Error{Code: CodePersistence, Message: msg}
}

// Playback creates a playback error.
func Playback(msg string) *Error {
	return &Error{Code: CodePlayback, Message: msg}
}

// Playbackf creates a playback error with a formatted message.
func Playbackf(format string, args ...any) *Error {
	return &Error{Code: CodePlayback, Message: fmt.Sprintf(format, args...)}
}

// ConfigurationMissing creates a precondition error naming the absent settings.
func ConfigurationMissing(fields ...string) *Error {
	msg := "configuration missing"
	if len(fields) > 0 {
		msg = "configuration missing: " + strings.Join(fields, ", ")
	}
	return &Error{Code: CodeConfigurationMissing, Message: msg, Details: fields}
}

// NotAvailable creates a not available error.
func NotAvailable(msg string) *Error {
	return &Error{Code: CodeNotAvailable, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// UserMessage returns a non-technical message suitable for showing to the reader.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}

	switch e.Code {
	case CodeFetch:
		switch e.Kind() {
		case FetchAuth:
			return "The content source rejected your access token. Check your settings."
		case FetchNotFound:
			return "The requested content could not be found. Check the repository, branch and path."
		case FetchNetwork:
			return "Could not reach the content source. Check your connection."
		default:
			return "The content source returned an error. Please try again later."
		}
	case CodeConfigurationMissing:
		return "Please complete your content source settings first."
	case CodePersistence:
		return "Your settings could not be saved or loaded."
	case CodePlayback:
		return "Playback failed. Please try again."
	case CodeNotAvailable:
		return "That action is not available right now."
	case CodeValidation:
		return "Some settings are invalid. Please review them."
	case CodeNotFound:
		return "Not found."
	default:
		return "Something went wrong. Please try again."
	}
}
