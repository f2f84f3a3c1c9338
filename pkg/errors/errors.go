package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
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

// Lending outcomes. These are expected business results and always carry details for the caller.
var (
	ErrBanned                 = New("BANNED", http.StatusForbidden, "student is banned from borrowing")
	ErrLimitReached           = New("LIMIT_REACHED", http.StatusConflict, "borrowing limit reached")
	ErrOutOfStock             = New("OUT_OF_STOCK", http.StatusConflict, "no available copies")
	ErrExtensionNotAllowed    = New("EXTENSION_NOT_ALLOWED", http.StatusConflict, "loan extension not allowed")
	ErrExtensionLimitExceeded = New("EXTENSION_LIMIT_EXCEEDED", http.StatusConflict, "loan extension limit exceeded")
	ErrInvalidAdjustment      = New("INVALID_ADJUSTMENT", http.StatusBadRequest, "copy adjustment would break inventory invariants")
	ErrInvalidTransition      = New("INVALID_STATE_TRANSITION", http.StatusConflict, "invalid state transition")
	ErrAlreadyReturned        = New("ALREADY_RETURNED", http.StatusConflict, "borrowing already returned")
	ErrBookStillAvailable     = New("BOOK_STILL_AVAILABLE", http.StatusConflict, "book has available copies and cannot be reserved")
	ErrNotAwaitingPickup      = New("NOT_AWAITING_PICKUP", http.StatusConflict, "reservation is not awaiting pickup")
	ErrReservationExpired     = New("RESERVATION_EXPIRED", http.StatusGone, "reservation pickup deadline has passed")
	ErrAlreadyTerminal        = New("ALREADY_TERMINAL", http.StatusConflict, "reservation already closed")
	ErrMalformedPolicy        = New("MALFORMED_POLICY", http.StatusUnprocessableEntity, "lending policy data is malformed")
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
	clone.Details = nil
	return &clone
}

// WithDetails returns a copy of err carrying the provided structured details.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = make(map[string]interface{}, len(err.Details)+len(details))
	for k, v := range err.Details {
		clone.Details[k] = v
	}
	for k, v := range details {
		clone.Details[k] = v
	}
	return &clone
}

// Is reports whether err is a typed error carrying the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
