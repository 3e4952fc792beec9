// Package types defines the data model shared by every Keel component:
// issues, dependencies, events, comments, labels, templates, and the
// structured error taxonomy operations fail with.
package types

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomy entries from the error handling design.
// Codes are part of the operation contract and must not change meaning
// once shipped.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeInvalid           Code = "invalid"
	CodeInvalidTransition Code = "invalid_transition"
	CodeConflict          Code = "conflict"
	CodeBusy              Code = "busy"
	CodeIntegrity         Code = "integrity"
	CodeUnknown           Code = "unknown"
)

// Error is the structured error every public operation can fail with.
// It never carries raw internal details (driver errors, SQL text) in
// Message; those are available only via Unwrap for logging collaborators.
type Error struct {
	Code    Code
	Message string

	// ValidTransitions and MissingFields are populated on CodeInvalidTransition.
	ValidTransitions []string
	MissingFields    []string

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a structured error of the given code.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a structured error of the given code that wraps cause for
// errors.Is/As chaining without leaking cause's text into Message.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// NotFound, Invalid, Conflict, Busy, Integrity are constructors for the
// common cases; InvalidTransition carries the extra gate payload.
func NotFound(format string, args ...any) *Error { return NewError(CodeNotFound, format, args...) }
func Invalid(format string, args ...any) *Error  { return NewError(CodeInvalid, format, args...) }
func Conflict(format string, args ...any) *Error { return NewError(CodeConflict, format, args...) }
func Busy(format string, args ...any) *Error     { return NewError(CodeBusy, format, args...) }
func Integrity(format string, args ...any) *Error {
	return NewError(CodeIntegrity, format, args...)
}

func InvalidTransition(validTransitions, missingFields []string, format string, args ...any) *Error {
	return &Error{
		Code:             CodeInvalidTransition,
		Message:          fmt.Sprintf(format, args...),
		ValidTransitions: validTransitions,
		MissingFields:    missingFields,
	}
}

// CodeOf extracts the Code from err, defaulting to CodeUnknown for any
// error that isn't a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return ""
	}
	return CodeUnknown
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
