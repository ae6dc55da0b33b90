// Package memerr defines the error taxonomy shared by every store
// operation. Errors carry a kind, the failing operation, and a concrete
// remediation step so callers can always tell the user what to do next.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind string

const (
	KindNotFound         Kind = "not_found"         // id unresolvable in the requested scope
	KindValidation       Kind = "validation"        // bad type, missing required field, disallowed scope
	KindConflict         Kind = "conflict"          // slug collision (normally auto-resolved)
	KindUnavailable      Kind = "unavailable"       // embedding collaborator unreachable
	KindCorruption       Kind = "corruption"        // index/graph failed to parse
	KindPermissionDenied Kind = "permission_denied" // enterprise path missing or scope disabled
)

// Error is the structured error returned by store operations.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "memory.create"
	Msg    string // what failed
	Remedy string // concrete fix for the user
	Err    error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Msg)
	if e.Remedy != "" {
		s += " (" + e.Remedy + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind.
func New(kind Kind, op, msg, remedy string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Remedy: remedy}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// NotFound builds a not-found error for an id in a scope.
func NotFound(op, id, scope string) *Error {
	return &Error{
		Kind:   KindNotFound,
		Op:     op,
		Msg:    fmt.Sprintf("memory %q not found in scope %q", id, scope),
		Remedy: "run 'mem list' to see available ids, or pass --scope to search another scope",
	}
}

// Validation builds a validation error.
func Validation(op, msg, remedy string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Remedy: remedy}
}

// PermissionDenied builds a permission error.
func PermissionDenied(op, msg, remedy string) *Error {
	return &Error{Kind: KindPermissionDenied, Op: op, Msg: msg, Remedy: remedy}
}

// Unavailable builds an unavailable error around a cause.
func Unavailable(op, msg string, err error) *Error {
	return &Error{
		Kind:   KindUnavailable,
		Op:     op,
		Msg:    msg,
		Remedy: "check that the embedding provider is running, or use keyword search",
		Err:    err,
	}
}

// Corruption builds a corruption error around a cause.
func Corruption(op, msg string, err error) *Error {
	return &Error{
		Kind:   KindCorruption,
		Op:     op,
		Msg:    msg,
		Remedy: "run 'mem repair' to rebuild the on-disk caches",
		Err:    err,
	}
}

// IsKind reports whether err (or anything it wraps) is an Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

// KindOf returns the kind of err, or "" if err is not a taxonomy error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
