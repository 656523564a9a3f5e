package auth

import (
	"context"
	"testing"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	user, err := p.SignUp(ctx, SignUpInput{
		Email:    "juan@nbsc.edu.ph",
		Password: "secret1",
		Metadata: map[string]string{"username": "juan"},
	})
	require.Nil(t, err)
	assert.NotEmpty(t, user.Id)
	assert.Equal(t, "juan", user.Metadata["username"])

	_, err = p.SignUp(ctx, SignUpInput{Email: "JUAN@nbsc.edu.ph", Password: "secret1"})
	assert.True(t, backend.IsCode(err, backend.CodeUserAlreadyExists))

	_, err = p.SignUp(ctx, SignUpInput{Email: "pedro@nbsc.edu.ph", Password: "123"})
	assert.True(t, backend.IsCode(err, backend.CodeWeakPassword))

	_, err = p.SignIn(ctx, "juan@nbsc.edu.ph", "wrong")
	assert.True(t, backend.IsCode(err, backend.CodeInvalidCredentials))
	_, err = p.SignIn(ctx, "nobody@nbsc.edu.ph", "secret1")
	assert.True(t, backend.IsCode(err, backend.CodeInvalidCredentials))

	session, err := p.SignIn(ctx, "juan@nbsc.edu.ph", "secret1")
	require.Nil(t, err)
	assert.Equal(t, user.Id, session.User.Id)

	looked, err := p.LookupUser(ctx, session.AccessToken)
	require.Nil(t, err)
	assert.Equal(t, "juan@nbsc.edu.ph", looked.Email)
}

func TestMemoryProviderRefreshAndSignOut(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
	p := NewMemoryProvider()
	p.Clock = func() time.Time { return now }

	_, err := p.SignUp(ctx, SignUpInput{Email: "juan@nbsc.edu.ph", Password: "secret1"})
	require.Nil(t, err)
	session, err := p.SignIn(ctx, "juan@nbsc.edu.ph", "secret1")
	require.Nil(t, err)
	assert.Equal(t, now.Add(DefaultTokenTTL), session.ExpiresAt)

	// Access token expired, refresh still works and rotates the refresh token.
	now = now.Add(2 * DefaultTokenTTL)
	_, err = p.LookupUser(ctx, session.AccessToken)
	assert.True(t, backend.IsCode(err, backend.CodeSessionExpired))

	refreshed, err := p.Refresh(ctx, session)
	require.Nil(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)
	_, err = p.Refresh(ctx, session)
	assert.True(t, backend.IsCode(err, backend.CodeSessionExpired))

	require.Nil(t, p.SignOut(ctx, refreshed.AccessToken))
	_, err = p.LookupUser(ctx, refreshed.AccessToken)
	assert.True(t, backend.IsCode(err, backend.CodeSessionExpired))
	_, err = p.Refresh(ctx, refreshed)
	assert.True(t, backend.IsCode(err, backend.CodeSessionExpired))

	err = p.SignOut(ctx, refreshed.AccessToken)
	assert.True(t, backend.IsCode(err, backend.CodeSessionExpired))
}
