package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure across the auth engine.
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Credential and token errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       ErrorCode = "TOKEN_INVALID"

	// Second-factor errors
	ErrCodeTwoFactorRequired       ErrorCode = "TWO_FACTOR_REQUIRED"
	ErrCodeTwoFactorNotEnabled     ErrorCode = "TWO_FACTOR_NOT_ENABLED"
	ErrCodeTwoFactorAlreadyEnabled ErrorCode = "TWO_FACTOR_ALREADY_ENABLED"
	ErrCodeInvalidVerificationCode ErrorCode = "INVALID_VERIFICATION_CODE"
	ErrCodeCodeExpired             ErrorCode = "CODE_EXPIRED"
	ErrCodeSetupCodePending        ErrorCode = "SETUP_CODE_PENDING"

	// Trusted-device errors
	ErrCodeDeviceNotTrusted ErrorCode = "DEVICE_NOT_TRUSTED"
)

// Error is a structured error carrying a code, a human-readable message,
// optional details for the response body, and a wrapped cause.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the HTTP status this error maps to.
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetDetails extracts the details from an error, nil if not structured.
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes.
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeTwoFactorNotEnabled,
		ErrCodeInvalidVerificationCode, ErrCodeCodeExpired,
		ErrCodeSetupCodePending:
		return http.StatusBadRequest

	case ErrCodeInvalidCredentials, ErrCodeTokenExpired, ErrCodeTokenInvalid,
		ErrCodeDeviceNotTrusted:
		return http.StatusUnauthorized

	case ErrCodeTwoFactorRequired:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeConflict, ErrCodeTwoFactorAlreadyEnabled:
		return http.StatusConflict

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common constructors.

// InvalidCredentials is deliberately generic so a caller cannot tell an
// unknown login apart from a wrong password.
func InvalidCredentials() *Error {
	return New(ErrCodeInvalidCredentials, "invalid credentials")
}

// InvalidVerificationCode covers every failed second-factor code check.
func InvalidVerificationCode() *Error {
	return New(ErrCodeInvalidVerificationCode, "invalid verification code")
}

// CodeExpired reports a delivered code past its TTL.
func CodeExpired() *Error {
	return New(ErrCodeCodeExpired, "verification code has expired")
}

// DeviceNotTrusted reports a failed trusted-device check.
func DeviceNotTrusted() *Error {
	return New(ErrCodeDeviceNotTrusted, "device is not trusted")
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(ErrCodeInternal, message)
}

// InternalWrap wraps an internal error.
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}

// RateLimitExceeded creates a rate-limit error with an optional retry hint.
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}
