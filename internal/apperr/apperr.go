// Package apperr defines the single error taxonomy used across component
// boundaries in arbor. Every component-facing error is a *Error with one of
// the Kind values below; no component returns a bare string-typed error
// across its own boundary (spec.md §7, Design Note §9).
//
// Grounded on internal/storage's sentinel errors in the teacher repo
// (ErrNotFound, ErrInvalidInput), generalized into one wrapped type so
// callers can switch on Kind instead of errors.Is against a growing set of
// package-level sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories from spec.md §7.
type Kind string

const (
	KindInvalid        Kind = "invalid"
	KindNotFound       Kind = "not_found"
	KindUnauthenticated Kind = "unauthenticated"
	KindUnauthorized   Kind = "unauthorized"
	KindRateLimited    Kind = "rate_limited"
	KindTimeout        Kind = "timeout"
	KindBackend        Kind = "backend"
	KindConflict       Kind = "conflict"
	KindCancelled      Kind = "cancelled"
)

// Error is the single error type carried across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of kind that wraps cause, using cause's message
// when message is empty.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind from err, returning KindBackend for any error
// that isn't already an *Error — an unrecognized failure is treated as an
// opaque backend failure rather than silently swallowed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindBackend
}

var (
	// ErrNotFound is a ready-made Error for the common "unknown or Deleted
	// id" case, so call sites don't need to construct one inline.
	ErrNotFound = New(KindNotFound, "resource not found")
)
