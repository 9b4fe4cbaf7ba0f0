// Package domainerrors carries the engine's error taxonomy across layer
// boundaries. Stores return sentinel errors; services wrap them (or create
// fresh errors) with a Code so the transport layer can map them to a status
// without inspecting message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers.
type Code string

const (
	// CodeValidation marks malformed or schema-mismatched input. Detected
	// before any cross-record read; never partially applied.
	CodeValidation Code = "validation"
	// CodeConflict marks business-rule rejections: quota overruns, date
	// conflicts, uniqueness violations, implausible check-ins, status no-ops.
	CodeConflict Code = "conflict"
	// CodeUnauthorized marks missing subscriptions, canEdit=false, inactive
	// offices, and insufficient claims.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound marks absent templates, offices, or activities.
	CodeNotFound Code = "not_found"
	// CodeStore marks infrastructure-level write failures. Retryable.
	CodeStore Code = "store"
	// CodeInternal marks programming or wiring faults.
	CodeInternal Code = "internal"
	// CodeTimeout marks context cancellation and deadline expiry.
	CodeTimeout Code = "timeout"
)

// Error is the taxonomy carrier. Message is user-visible and must contain
// enough context (field name, limit, overage, conflicting date) to correct
// and resubmit.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is nil,
// Wrap returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// untagged errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the user-visible message, falling back to err.Error().
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
