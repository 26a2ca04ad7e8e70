package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine error for callers deciding between
// retrying, re-fetching state, or surfacing to the end user.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindDatabase      Kind = "database"
	KindStateConflict Kind = "state_conflict"
)

// Error is a structured engine error. Field carries the offending
// field name or entity/session/execution id when one exists.
type Error struct {
	Kind  Kind
	Msg   string
	Field string
	Err   error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input. Never retried.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Field: field}
}

// NotFound reports an absent session/entity/character/execution.
func NotFound(field, msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg, Field: field}
}

// Unauthorized reports an actor acting on a resource it does not own.
func Unauthorized(field, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Msg: msg, Field: field}
}

// StateConflict reports an action attempted in a state that does not
// permit it. The caller must re-fetch current state.
func StateConflict(field, msg string) *Error {
	return &Error{Kind: KindStateConflict, Msg: msg, Field: field}
}

// Database wraps a row-store failure. The whole operation is safe to
// retry from the last durable state.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Msg: "storage failure", Err: err}
}

// KindOf returns the Kind of err, or KindDatabase if err is not an
// *Error (unclassified failures are treated as retriable storage-level).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error kind to the REST status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
