package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a rejection reason, stable across the HTTP surface.
type ErrorCode string

const (
	CodeCapacityExceeded    ErrorCode = "CAPACITY_EXCEEDED"
	CodeTempleClosed        ErrorCode = "TEMPLE_CLOSED"
	CodeTempleNotFound      ErrorCode = "TEMPLE_NOT_FOUND"
	CodeTempleMismatch      ErrorCode = "TEMPLE_MISMATCH"
	CodeInvalidSlot         ErrorCode = "INVALID_SLOT"
	CodeInvalidVisitorCount ErrorCode = "INVALID_VISITOR_COUNT"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodePassNotFound        ErrorCode = "PASS_NOT_FOUND"
	CodePassAlreadyUsed     ErrorCode = "PASS_ALREADY_USED"
	CodePassCancelled       ErrorCode = "PASS_CANCELLED"
	CodePassExpired         ErrorCode = "PASS_EXPIRED"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error is a domain rejection with a stable code. Transport layers map the
// code to an HTTP status; services match on it with HasCode.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err is a domain Error carrying code.
func HasCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the domain code from err, or empty if it is not a
// domain error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsValidation reports a malformed request, never worth retrying.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidSlot, CodeInvalidVisitorCount, CodeInvalidInput:
		return true
	}
	return false
}

// IsConflict reports a definitive rejection: the caller lost a race or the
// request contradicts current state. A human decides what happens next.
func IsConflict(err error) bool {
	switch CodeOf(err) {
	case CodeCapacityExceeded, CodePassAlreadyUsed, CodePassCancelled, CodeConflict:
		return true
	}
	return false
}

// IsTransient reports a retryable store failure.
func IsTransient(err error) bool {
	return CodeOf(err) == CodeServiceUnavailable
}
