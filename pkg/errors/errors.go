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
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Ledger state machine and appeal policy errors. Each failed precondition
// carries its own code so clients can render an actionable message.
var (
	ErrNotOwner          = New("NOT_OWNER", http.StatusForbidden, "record belongs to another faculty member")
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "requested status change is not permitted")
	ErrWrongType         = New("WRONG_TYPE", http.StatusUnprocessableEntity, "only negative records can be appealed")
	ErrNotDecided        = New("NOT_DECIDED", http.StatusUnprocessableEntity, "record has not been decided yet")
	ErrAlreadyAppealed   = New("ALREADY_APPEALED", http.StatusConflict, "record already has an appeal")
	ErrWindowExpired     = New("APPEAL_WINDOW_EXPIRED", http.StatusUnprocessableEntity, "appeal window has elapsed")
	ErrMissingProof      = New("MISSING_PROOF", http.StatusUnprocessableEntity, "appeal requires a proof document")
	ErrMissingReason     = New("MISSING_REASON", http.StatusUnprocessableEntity, "appeal requires a reason")
	ErrDependency        = New("DEPENDENCY_FAILURE", http.StatusBadGateway, "external dependency failed")
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
