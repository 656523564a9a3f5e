package model

import (
	"time"
)

// AuthUser is the identity behind a session.
type AuthUser struct {
	Id       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuthSession is the token bundle of one authenticated login. Expiry and
// refresh are owned by the auth provider.
type AuthSession struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         AuthUser  `json:"user"`
}

// Expired reports whether the access token expires within margin from now.
func (s *AuthSession) Expired(now time.Time, margin time.Duration) bool {
	return !s.ExpiresAt.IsZero() && now.Add(margin).After(s.ExpiresAt)
}

// Clone returns a copy that shares no map with s.
func (s AuthSession) Clone() AuthSession {
	if s.User.Metadata != nil {
		metadata := make(map[string]string, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			metadata[k] = v
		}
		s.User.Metadata = metadata
	}
	return s
}

type AuthEventKind string

const (
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

// AuthEvent is delivered on the auth state change channel. Session is nil
// for SIGNED_OUT.
type AuthEvent struct {
	Kind    AuthEventKind `json:"kind"`
	Session *AuthSession  `json:"session"`
}
