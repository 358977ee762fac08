package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Score encoding error kinds. Row-level kinds are collected into batch
// results; the period/upload kinds abort the whole operation.
var (
	ErrEncodingPeriodClosed   = New("ENCODING_PERIOD_CLOSED", http.StatusConflict, "the encoding period is not open")
	ErrNotAuthorised          = New("NOT_AUTHORISED", http.StatusForbidden, "field not writable for this principal")
	ErrBadValue               = New("BAD_VALUE", http.StatusBadRequest, "value fails validation")
	ErrConflictingFields      = New("CONFLICTING_FIELDS", http.StatusBadRequest, "score and justification cannot both be set")
	ErrDoubleEncodingMismatch = New("DOUBLE_ENCODING_MISMATCH", http.StatusConflict, "re-encoded score differs from the draft")
	ErrUploadBadHeader        = New("UPLOAD_BAD_HEADER", http.StatusBadRequest, "spreadsheet header does not match the template")
	ErrUploadNoSession        = New("UPLOAD_NO_SESSION", http.StatusBadRequest, "spreadsheet carries no session value")
	ErrUploadMultipleSessions = New("UPLOAD_MULTIPLE_SESSIONS", http.StatusBadRequest, "spreadsheet carries more than one session value")
	ErrUploadUnknownEnrolment = New("UPLOAD_UNKNOWN_ENROLMENT", http.StatusBadRequest, "row does not match an exam enrolment")
	ErrBrokerUnavailable      = New("BROKER_UNAVAILABLE", http.StatusServiceUnavailable, "message broker unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
