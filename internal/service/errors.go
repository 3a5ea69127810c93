// Package service implements the reservation core: performance creation
// with its seat inventory, the reservation transaction and the read paths
// over seats and reservations.  Callers pass the acting user explicitly.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
)

// Kind classifies service failures for callers.
type Kind string

const (
	// KindValidation: the request is malformed; nothing was written.
	KindValidation Kind = "validation"
	// KindConflict: a requested seat or unique value is already taken.
	KindConflict Kind = "conflict"
	// KindNotFound: a referenced performance, hall, play, seat or
	// reservation does not exist.
	KindNotFound Kind = "not_found"
	// KindUnavailable: storage could not complete the operation.  The
	// transaction was rolled back and the call may be retried as a whole.
	KindUnavailable Kind = "unavailable"
	// KindInternal: storage rejected the operation for a reason retrying
	// will not fix.
	KindInternal Kind = "internal"
)

// Error is the error type returned by every service operation.  Message is
// safe to show to API clients; Err keeps the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Retryable reports whether repeating the whole call may succeed.
func Retryable(err error) bool { return KindOf(err) == KindUnavailable }

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func conflictError(msg string, cause error) error {
	return &Error{Kind: KindConflict, Message: msg, Err: cause}
}

func notFoundError(msg string, cause error) error {
	return &Error{Kind: KindNotFound, Message: msg, Err: cause}
}

// storageError wraps a failure the service does not classify itself.  Only
// deadlocks, lock timeouts and lost connections are worth retrying.
func storageError(op string, cause error) error {
	if !repository.IsRetryable(cause) {
		return &Error{Kind: KindInternal, Message: "internal error", Err: fmt.Errorf("%s: %w", op, cause)}
	}
	return &Error{
		Kind:    KindUnavailable,
		Message: "storage unavailable, retry the request",
		Err:     fmt.Errorf("%s: %w", op, cause),
	}
}
