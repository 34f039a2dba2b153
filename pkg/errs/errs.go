// Package errs defines Brainy's error taxonomy. Every public operation
// returns one of these kinds wrapped in a *Error carrying the operation
// name and the id involved, so a caller can always tell what failed and
// on which entity without parsing a message string.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies which taxonomy bucket an error belongs to.
type Kind string

const (
	Validation        Kind = "validation"
	NotFound          Kind = "not_found"
	ReadOnly          Kind = "read_only"
	WriteOnly         Kind = "write_only"
	Frozen            Kind = "frozen"
	Timeout           Kind = "timeout"
	Network           Kind = "network"
	Storage           Kind = "storage"
	RetryExhausted    Kind = "retry_exhausted"
	DimensionMismatch Kind = "dimension_mismatch"
	Cancelled         Kind = "cancelled"
)

// Error is the concrete error type returned across the core boundary.
// Op names the operation ("add_noun", "search", ...) and ID names the
// entity involved, if any; both are included in Error() so failures are
// always attributable without extra context.
type Error struct {
	Op   string
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("brainy: %s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("brainy: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error. msg is wrapped in errors.New; use Wrap to carry an
// existing error's chain instead.
func New(op string, kind Kind, id string, msg string) *Error {
	return &Error{Op: op, Kind: kind, ID: id, Err: errors.New(msg)}
}

// Wrap builds an *Error around an existing error, preserving it for
// errors.Is/As and %w-style unwrapping.
func Wrap(op string, kind Kind, id string, err error) *Error {
	return &Error{Op: op, Kind: kind, ID: id, Err: err}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// Retryable reports whether a caller may reasonably retry the operation
// that produced err, per the §7 taxonomy (Timeout and Network are
// retryable; RetryExhausted specifically means retries were already
// attempted and exhausted, so it is not retryable again).
func Retryable(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	switch be.Kind {
	case Timeout, Network:
		return true
	default:
		return false
	}
}
