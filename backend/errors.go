// Package backend holds the error contract shared by every adapter of the
// hosted backend: the table store, the auth provider and object storage.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Machine readable error codes. Adapters translate their native errors into
// one of these so callers never depend on a specific driver.
const (
	// Single-row fetch matched no row.
	CodeNoRows = "no_rows"
	// Single-row fetch matched more than one row.
	CodeMultipleRows = "multiple_rows"
	// Unique constraint violated, e.g. a second like on the same post or a
	// taken username.
	CodeUniqueViolation = "unique_violation"
	// Referenced row does not exist or lives under a different parent.
	CodeInvalidReference = "invalid_reference"
	// Acting user does not own the row.
	CodeForbidden = "forbidden"
	// Wrong email or password.
	CodeInvalidCredentials = "invalid_credentials"
	// Sign up with an email that already has an identity.
	CodeUserAlreadyExists = "user_already_exists"
	// Provider throttled the request.
	CodeRateLimited = "over_request_rate_limit"
	// Provider rejected the password policy.
	CodeWeakPassword = "weak_password"
	// Session is gone or cannot be refreshed.
	CodeSessionExpired = "session_expired"
	// Call did not finish before its deadline.
	CodeTimeout = "timeout"
	CodeUnknown = "unknown"
)

// Error is the structured error returned by all backend adapters.
type Error struct {
	Code    string
	Message string
	Err     error
}

func NewError(code string, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err. Context deadlines are reported as
// CodeTimeout even when an adapter did not wrap them.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnknown
}

func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
