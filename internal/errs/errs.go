// Package errs defines the error taxonomy shared by every component of the
// supervisor (spec.md §7). Handlers never panic on untrusted input; instead
// they wrap failures in an *Error and translate it at the transport boundary
// into the tool's documented {status:"error", error_code, error_message} shape.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the categories in spec.md §7. These are not Go types —
// a single *Error carries one Kind plus the operation and wrapped cause.
type Kind string

const (
	Config        Kind = "config"
	IO            Kind = "io"
	PathViolation Kind = "path_violation"
	Diff          Kind = "diff"
	NotFound      Kind = "not_found"
	Unauthorized  Kind = "unauthorized"
	Conflict      Kind = "conflict"
	Protocol      Kind = "protocol"
	Internal      Kind = "internal"
)

// Error is the supervisor-wide error type. Op names the operation that
// failed (e.g. "session.resolve", "store.create_approval"); Err is the
// underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error whose cause is a plain error carrying msg.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%s", msg)}
}

// Wrap constructs an *Error around an existing cause.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ErrorCode maps a Kind to the short snake_case code the agent-facing tool
// responses document (spec.md §4.10, §7). Every Conflict maps to the same
// "conflict" code.
func ErrorCode(kind Kind) string {
	switch kind {
	case PathViolation:
		return "path_violation"
	case Diff:
		return "diff_error"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case Protocol:
		return "protocol_error"
	case Config:
		return "config_error"
	case IO:
		return "io_error"
	default:
		return "internal_error"
	}
}
