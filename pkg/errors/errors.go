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
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict   = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss  = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Booking engine errors. Every multi-record mutation either commits all of
// its writes or none of them; the code tells the caller which recovery
// applies: fix the profile, top up credits, or retry from a fresh read.
var (
	ErrInvalidConfiguration = New("INVALID_CONFIGURATION", http.StatusBadRequest, "recurrence profile is not usable")
	ErrNoCreditsRemaining   = New("NO_CREDITS_REMAINING", http.StatusConflict, "student has no lesson credits left")
	ErrIncompleteBundle     = New("INCOMPLETE_BUNDLE", http.StatusConflict, "bundle is not fully generated")
	ErrStaleReference       = New("STALE_REFERENCE", http.StatusConflict, "referenced record no longer exists")
	ErrPromotionFailed      = New("PROMOTION_FAILED", http.StatusInternalServerError, "bundle promotion aborted")
	ErrRebalanceFailed      = New("REBALANCE_FAILED", http.StatusInternalServerError, "bundle rebalance aborted")
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
