// Package lakeerr implements the error taxonomy shared across the lake's
// components: a typed error with a stable kind/code that callers can map to
// HTTP status codes and retry policy without string-matching messages.
package lakeerr

import (
	"errors"
	"fmt"
)

// Kind is the top-level error classification. Every error returned across a
// component boundary carries one.
type Kind string

const (
	KindInput     Kind = "input"
	KindPolicy    Kind = "policy"
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
	KindTransient Kind = "transient"
	KindCorrupt   Kind = "corrupt"
	KindInternal  Kind = "internal"
)

// Error is the taxonomy's concrete type. Message is safe to show callers;
// internal detail (stack context, underlying driver errors) stays in
// Wrapped and is logged, never serialized to a client.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Details map[string]string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an Error of the given kind with a code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches kind/code/message to an underlying error, preserving it for
// logging via errors.Unwrap while keeping Message caller-safe.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Wrapped: err}
}

// WithField returns a copy of e annotated with the offending request field.
func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// WithDetails returns a copy of e with additional non-sensitive context.
func (e *Error) WithDetails(details map[string]string) *Error {
	c := *e
	c.Details = details
	return &c
}

// Is reports whether the first *Error in err's chain has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal for errors
// outside the taxonomy (never leaked to callers as anything more specific).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code prescribed by the error taxonomy.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInput:
		return 400
	case KindPolicy:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindTransient:
		return 503
	case KindCorrupt:
		return 500
	case KindInternal:
		return 500
	default:
		return 500
	}
}

// Retryable reports whether operations failing with this Kind may be retried
// by the caller (only transient errors on idempotent operations qualify).
func Retryable(kind Kind) bool {
	return kind == KindTransient
}
