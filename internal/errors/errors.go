// Package errors defines the domain error taxonomy shared by services and handlers.
package errors

import (
	"errors"
	"fmt"
)

// Error codes surfaced at the API boundary
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeStateConflict     = "STATE_CONFLICT"
	CodeStaleState        = "STALE_STATE"
	CodeFraudRejected     = "FRAUD_REJECTED"
	CodeSignatureMismatch = "SIGNATURE_MISMATCH"
	CodeEncoding          = "ENCODING_ERROR"
	CodeNotImplemented    = "NOT_IMPLEMENTED"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError carries a stable code plus a human readable message.
type DomainError struct {
	Code    string
	Message string
	Details map[string]interface{}
	Err     error

	kind bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels (ErrValidation, ErrStateConflict, ...) on code alone and
// specific errors on code and message. A stale state error is also a state conflict.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if !t.kind {
		return t.Code == e.Code && t.Message == e.Message
	}
	if t.Code == e.Code {
		return true
	}
	return e.Code == CodeStaleState && t.Code == CodeStateConflict
}

// WithError returns a copy wrapping err.
func (e *DomainError) WithError(err error) *DomainError {
	clone := *e
	clone.kind = false
	clone.Err = err
	return &clone
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	clone := *e
	clone.kind = false
	clone.Details = details
	return &clone
}

// Sentinels for errors.Is checks
var (
	ErrValidation        = &DomainError{Code: CodeValidation, Message: "invalid request", kind: true}
	ErrNotFound          = &DomainError{Code: CodeNotFound, Message: "not found", kind: true}
	ErrUnauthorized      = &DomainError{Code: CodeUnauthorized, Message: "unauthorized", kind: true}
	ErrForbidden         = &DomainError{Code: CodeForbidden, Message: "forbidden", kind: true}
	ErrStateConflict     = &DomainError{Code: CodeStateConflict, Message: "invalid state transition", kind: true}
	ErrStaleState        = &DomainError{Code: CodeStaleState, Message: "state changed concurrently", kind: true}
	ErrFraudRejected     = &DomainError{Code: CodeFraudRejected, Message: "payment could not be processed for security reasons", kind: true}
	ErrSignatureMismatch = &DomainError{Code: CodeSignatureMismatch, Message: "request could not be verified", kind: true}
	ErrEncoding          = &DomainError{Code: CodeEncoding, Message: "malformed payload", kind: true}
	ErrNotImplemented    = &DomainError{Code: CodeNotImplemented, Message: "not implemented", kind: true}
	ErrInternal          = &DomainError{Code: CodeInternal, Message: "internal error", kind: true}
)

func Validation(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(resource string) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: resource + " not found"}
}

func StateConflict(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeStateConflict, Message: fmt.Sprintf(format, args...)}
}

func Stale(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeStaleState, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(message string) *DomainError {
	return &DomainError{Code: CodeForbidden, Message: message}
}

func Encoding(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeEncoding, Message: fmt.Sprintf(format, args...)}
}

func NotImplemented(what string) *DomainError {
	return &DomainError{Code: CodeNotImplemented, Message: what + " is not implemented"}
}

// As extracts a DomainError from err's chain.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
