package query

import (
	"errors"
	"fmt"
)

// Kind classifies a query failure.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindServiceUnavailable Kind = "service_unavailable"
	KindUpstreamError      Kind = "upstream_error"
	KindTimeout            Kind = "timeout"
	KindCancelled          Kind = "cancelled"
	KindNotFound           Kind = "not_found"
	KindInternalError      Kind = "internal_error"
)

// Error is a classified query failure.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error without a cause.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error around a cause.
func WrapError(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error, defaulting to internal_error.
func KindOf(err error) Kind {
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr.Kind
	}
	return KindInternalError
}
