// Package errors provides structured error types with codes for the bridge.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for categorizing errors.
const (
	CodeInternal     = "internal_error"
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"

	// Token verification failures. These are definitive rejections and
	// must never be retried.
	CodeMalformedToken    = "malformed_token"
	CodeUnknownSigningKey = "unknown_signing_key"
	CodeInvalidSignature  = "invalid_signature"
	CodeTokenExpired      = "token_expired"
	CodeUnknownIssuer     = "unknown_issuer"

	// CodeKeySetUnavailable is transient: the key set could not be
	// fetched. Callers may retry with backoff.
	CodeKeySetUnavailable = "keyset_unavailable"

	// Identity resolution failures.
	CodeNoMatchingUser     = "no_matching_user"
	CodeProvisioningFailed = "provisioning_failed"

	// Lifecycle operation failures.
	CodeAuthenticationFailed = "authentication_failed"
	CodeSessionExpired       = "session_expired"
	CodeUnauthorized         = "unauthorized"
	CodeRemoteProvider       = "remote_provider_error"
)

// Error represents a structured error with a code and message.
// ProviderMessage carries the remote provider's human-readable message
// verbatim when one is available.
type Error struct {
	Code            string
	Message         string
	ProviderMessage string
	Err             error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given code and message.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Provider creates a remote provider error, preserving the provider's
// code and display message.
func Provider(err error, providerCode, providerMessage string) *Error {
	return &Error{
		Code:            CodeRemoteProvider,
		Message:         providerCode,
		ProviderMessage: providerMessage,
		Err:             err,
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTransient reports whether an error is a transient network-class
// failure rather than a definitive rejection. Transient errors may be
// retried by the caller; rejections must not be.
func IsTransient(err error) bool {
	if IsCode(err, CodeKeySetUnavailable) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// NotFound creates a not found error.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return &Error{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Err:     err,
	}
}
