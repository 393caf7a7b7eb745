// Package service is the application facade. It validates input, talks to
// the store, and coordinates the mailbox listener and sync scheduler. The
// callers (a bot, an HTTP layer, a CLI) only ever see this package.
package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a facade error so callers can map it to a
// user-facing response without string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindTransport  ErrorKind = "transport"
	KindInternal   ErrorKind = "internal"
)

// Error is the error type returned by the facade.
type Error struct {
	Kind    ErrorKind
	Field   string // set for validation errors
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationErr(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func notFoundErr(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func transportErr(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

func internalErr(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the kind from any error returned by this package.
// Unknown errors report KindInternal.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
