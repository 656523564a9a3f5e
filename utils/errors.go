package utils

import (
	"errors"
	"fmt"
)

// Error codes returned to the client in the "code" field of a failed API
// response.
const (
	ErrorTokenAuthFail  = 10001
	ErrorBadRequest     = 10002
	ErrorIdentity       = 10003
	ErrorAuthorization  = 10004
	ErrorNotFound       = 10005
	ErrorTransient      = 10006
	ErrorInternalServer = 10007
)

// ErrorKind classifies a failure from the user's point of view.
type ErrorKind string

const (
	// Invalid credentials, duplicate registration, rate limited registration.
	IdentityError ErrorKind = "IDENTITY"
	// Acting on a resource not owned by the viewer.
	AuthorizationError ErrorKind = "AUTHORIZATION"
	NotFoundError      ErrorKind = "NOT_FOUND"
	// Anything not matching a known backend code, including timeouts.
	TransientError ErrorKind = "TRANSIENT"
	// Rejected locally before any backend call.
	ValidationError ErrorKind = "VALIDATION"
)

const GenericFailureMessage = "Something went wrong. Please try again."

// UserError is an error whose Message is safe to show to the end user. The
// wrapped Err keeps the original cause for logging.
type UserError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewUserError(kind ErrorKind, message string, err error) *UserError {
	return &UserError{Kind: kind, Message: message, Err: err}
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// UserMessage returns the message that should be displayed for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return GenericFailureMessage
}

// KindOf returns the kind of err, TransientError for unclassified errors.
func KindOf(err error) ErrorKind {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return TransientError
}

// ErrorCodeOf maps an error to the API error code.
func ErrorCodeOf(err error) int {
	switch KindOf(err) {
	case IdentityError:
		return ErrorIdentity
	case AuthorizationError:
		return ErrorAuthorization
	case NotFoundError:
		return ErrorNotFound
	case ValidationError:
		return ErrorBadRequest
	default:
		return ErrorTransient
	}
}
