package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable symbolic error code surfaced to callers.
type Kind string

const (
	KindInvalidQuery Kind = "db/invalid-query"
	KindInvalidAuth  Kind = "db/invalid-auth"
	KindInvalidTx    Kind = "db/invalid-tx"
	KindUnavailable  Kind = "db/unavailable"
	KindStorage      Kind = "db/storage-error"
	KindTimeout      Kind = "db/timeout"
	KindConnection   Kind = "db/connection-error"
	KindUnexpected   Kind = "db/unexpected-error"
)

// Status maps a kind to its HTTP-like status code.
func (k Kind) Status() int {
	switch k {
	case KindInvalidQuery, KindInvalidTx:
		return 400
	case KindInvalidAuth:
		return 401
	case KindUnavailable:
		return 404
	case KindTimeout:
		return 408
	case KindStorage, KindConnection, KindUnexpected:
		return 500
	default:
		return 500
	}
}

// Error is a typed engine error carrying a kind, status, and optional cause.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so callers can match with errors.Is(err, errs.E(kind, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// E creates a new typed error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Status: kind.Status(), Message: msg}
}

// Ef creates a new typed error with a formatted message.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: kind.Status(), Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Status: kind.Status(), Message: msg, Err: err}
}

// KindOf extracts the kind from an error chain, or KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// StatusOf extracts the HTTP-like status from an error chain.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 500
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
