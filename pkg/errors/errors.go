package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are part of the public API
// contract; handlers map them onto HTTP statuses via MetadataFor.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeOutOfRange    Code = "OUT_OF_RANGE"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces at the API boundary.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// MetadataFor resolves the transport behavior for a code. Unknown codes fall
// through to the internal-failure defaults.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true}
	case CodeNotFound:
		return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"}
	case CodeConflict:
		return Metadata{HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "version conflict"}
	case CodeStateConflict:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "operation not allowed in current state", DetailsAllowed: true}
	case CodeOutOfRange:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "quantity out of range", DetailsAllowed: true}
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "service dependency unavailable", DetailsAllowed: true}
	default:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
	}
}

// Error is the canonical error carried across service boundaries.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches structured detail. Handlers only expose it when the
// code's metadata allows.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// Metadata resolves the transport behavior for this error's code.
func (e *Error) Metadata() Metadata {
	return MetadataFor(e.Code())
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the canonical error from a chain, or nil when absent.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
