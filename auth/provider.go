// Package auth is the identity side of the hosted backend: an identity
// provider, a per-client persisted session and the auth state notification
// channel the Session Manager listens on.
package auth

import (
	"context"

	"github.com/it35lab/campusfeed/model"
)

// SignUpInput carries a new identity. Metadata is stored with the identity
// as custom attributes.
type SignUpInput struct {
	Email    string
	Password string
	Metadata map[string]string
}

// Provider is an identity provider. Errors are *backend.Error, callers
// distinguish CodeInvalidCredentials, CodeUserAlreadyExists and
// CodeRateLimited.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*model.AuthSession, error)
	// Refresh exchanges a refresh token for a new access token.
	Refresh(ctx context.Context, session *model.AuthSession) (*model.AuthSession, error)
	SignUp(ctx context.Context, input SignUpInput) (*model.AuthUser, error)
	// SignOut revokes every token of the identity behind accessToken.
	SignOut(ctx context.Context, accessToken string) error
	LookupUser(ctx context.Context, accessToken string) (*model.AuthUser, error)
}
