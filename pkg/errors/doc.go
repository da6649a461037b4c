// Package errors provides structured error handling with error codes for
// the auth engine.
//
// Every user-visible failure carries a typed ErrorCode that maps to an HTTP
// status, so handlers never have to guess status codes and clients can
// branch on a stable code instead of message text.
//
// # Basic Usage
//
//	import "github.com/spendlyzer/auth/pkg/errors"
//
//	// Create a coded error
//	err := errors.New(errors.ErrCodeCodeExpired, "verification code has expired")
//
//	// Wrap an underlying cause
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to load profile")
//
//	// Inspect
//	if errors.IsCode(err, errors.ErrCodeInvalidCredentials) { ... }
//	status := errors.MapErrorCodeToHTTPStatus(errors.GetCode(err))
//
// Credential failures are deliberately collapsed into the single generic
// ErrCodeInvalidCredentials so responses cannot be used to probe which
// logins exist.
package errors
