package backend

import (
	"errors"

	"github.com/it35lab/campusfeed/utils"
)

// User facing messages of known backend codes.
const (
	MessageInvalidCredentials = "Invalid email or password."
	MessageAlreadyRegistered  = "An account with this email already exists."
	MessageRateLimited        = "Too many attempts. Please wait a moment and try again."
	MessageWeakPassword       = "Password must be at least 6 characters."
	MessageSessionExpired     = "Your session has expired. Please sign in again."
	MessageTimeout            = "The request timed out. Please try again."
	MessageNotFound           = "This item no longer exists."
)

// ToUserError classifies err for display. message is shown for failures
// that have no more specific message, e.g. "Failed to like post.".
func ToUserError(err error, message string) *utils.UserError {
	if err == nil {
		return nil
	}
	var ue *utils.UserError
	if errors.As(err, &ue) {
		return ue
	}
	switch CodeOf(err) {
	case CodeInvalidCredentials:
		return utils.NewUserError(utils.IdentityError, MessageInvalidCredentials, err)
	case CodeUserAlreadyExists:
		return utils.NewUserError(utils.IdentityError, MessageAlreadyRegistered, err)
	case CodeRateLimited:
		return utils.NewUserError(utils.IdentityError, MessageRateLimited, err)
	case CodeSessionExpired:
		return utils.NewUserError(utils.IdentityError, MessageSessionExpired, err)
	case CodeWeakPassword:
		return utils.NewUserError(utils.ValidationError, MessageWeakPassword, err)
	case CodeForbidden:
		return utils.NewUserError(utils.AuthorizationError, message, err)
	case CodeNoRows:
		return utils.NewUserError(utils.NotFoundError, MessageNotFound, err)
	case CodeTimeout:
		return utils.NewUserError(utils.TransientError, MessageTimeout, err)
	default:
		return utils.NewUserError(utils.TransientError, message, err)
	}
}
