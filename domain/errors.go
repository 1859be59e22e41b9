package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Invalidf builds an INVALID error with a formatted message.
func Invalidf(format string, args ...interface{}) *Error {
	return NewError(ErrCodeInvalid, fmt.Sprintf(format, args...))
}

// Conflictf builds a CONFLICT error with a formatted message.
func Conflictf(format string, args ...interface{}) *Error {
	return NewError(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// Common domain errors.
var (
	ErrUserNotFound     = NewError(ErrCodeNotFound, "user not found")
	ErrProductNotFound  = NewError(ErrCodeNotFound, "product not found")
	ErrPurchaseNotFound = NewError(ErrCodeNotFound, "purchase not found")
	ErrSessionNotFound  = NewError(ErrCodeNotFound, "session not found")
	ErrEmptyCart        = NewError(ErrCodeInvalid, "cart cannot be empty")
	ErrNotPending       = NewError(ErrCodeInvalid, "purchase is not pending")
	ErrNotApprover      = NewError(ErrCodeForbidden, "current user is not the assigned approver")
	ErrDuplicateName    = NewError(ErrCodeConflict, "user with the same name already exists")
	ErrVersionConflict  = NewError(ErrCodeConflict, "entity was modified concurrently")
	ErrAlreadyLocked    = NewError(ErrCodeConflict, "object is already locked")
	ErrUnauthorized     = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden        = NewError(ErrCodeForbidden, "forbidden")
	ErrInvalidPayload   = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
