package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL   = time.Hour
	MinPasswordLength = 6
)

type memoryIdentity struct {
	user         model.AuthUser
	passwordHash []byte
}

type memoryToken struct {
	userId    string
	expiresAt time.Time
}

// MemoryProvider is an in-process identity provider for development and
// tests. Passwords are stored as bcrypt hashes.
type MemoryProvider struct {
	mu sync.Mutex

	// keyed by lower-cased email
	identities    map[string]*memoryIdentity
	accessTokens  map[string]memoryToken
	refreshTokens map[string]string

	TokenTTL time.Duration
	Clock    func() time.Time
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		identities:    make(map[string]*memoryIdentity),
		accessTokens:  make(map[string]memoryToken),
		refreshTokens: make(map[string]string),
		TokenTTL:      DefaultTokenTTL,
		Clock:         time.Now,
	}
}

func (p *MemoryProvider) SignUp(ctx context.Context, input SignUpInput) (*model.AuthUser, error) {
	if len(input.Password) < MinPasswordLength {
		return nil, backend.NewError(backend.CodeWeakPassword, "password is too short", nil)
	}
	// Hash outside the lock.
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.MinCost)
	if err != nil {
		return nil, backend.NewError(backend.CodeWeakPassword, "cannot hash password", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := strings.ToLower(input.Email)
	if _, ok := p.identities[key]; ok {
		return nil, backend.NewError(backend.CodeUserAlreadyExists, "user already registered", nil)
	}
	metadata := make(map[string]string, len(input.Metadata))
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	identity := &memoryIdentity{
		user:         model.AuthUser{Id: uuid.New().String(), Email: input.Email, Metadata: metadata},
		passwordHash: hash,
	}
	p.identities[key] = identity
	user := identity.user
	return &user, nil
}

func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*model.AuthSession, error) {
	p.mu.Lock()
	identity, ok := p.identities[strings.ToLower(email)]
	p.mu.Unlock()
	if !ok {
		return nil, backend.NewError(backend.CodeInvalidCredentials, "invalid login credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword(identity.passwordHash, []byte(password)); err != nil {
		return nil, backend.NewError(backend.CodeInvalidCredentials, "invalid login credentials", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issue(identity.user, uuid.New().String()), nil
}

func (p *MemoryProvider) Refresh(ctx context.Context, session *model.AuthSession) (*model.AuthSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userId, ok := p.refreshTokens[session.RefreshToken]
	if !ok {
		return nil, backend.NewError(backend.CodeSessionExpired, "refresh token rejected", nil)
	}
	delete(p.refreshTokens, session.RefreshToken)
	identity := p.identityById(userId)
	if identity == nil {
		return nil, backend.NewError(backend.CodeSessionExpired, "identity is gone", nil)
	}
	return p.issue(identity.user, uuid.New().String()), nil
}

func (p *MemoryProvider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, ok := p.accessTokens[accessToken]
	if !ok {
		return backend.NewError(backend.CodeSessionExpired, "access token rejected", nil)
	}
	for k, t := range p.accessTokens {
		if t.userId == token.userId {
			delete(p.accessTokens, k)
		}
	}
	for k, userId := range p.refreshTokens {
		if userId == token.userId {
			delete(p.refreshTokens, k)
		}
	}
	return nil
}

func (p *MemoryProvider) LookupUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, ok := p.accessTokens[accessToken]
	if !ok || !p.Clock().Before(token.expiresAt) {
		return nil, backend.NewError(backend.CodeSessionExpired, "access token rejected", nil)
	}
	identity := p.identityById(token.userId)
	if identity == nil {
		return nil, backend.NewError(backend.CodeSessionExpired, "identity is gone", nil)
	}
	user := identity.user
	return &user, nil
}

// issue must be called with p.mu held.
func (p *MemoryProvider) issue(user model.AuthUser, refreshToken string) *model.AuthSession {
	session := &model.AuthSession{
		AccessToken:  uuid.New().String(),
		RefreshToken: refreshToken,
		ExpiresAt:    p.Clock().Add(p.TokenTTL),
		User:         user,
	}
	p.accessTokens[session.AccessToken] = memoryToken{userId: user.Id, expiresAt: session.ExpiresAt}
	p.refreshTokens[refreshToken] = user.Id
	return session
}

func (p *MemoryProvider) identityById(id string) *memoryIdentity {
	for _, identity := range p.identities {
		if identity.user.Id == id {
			return identity
		}
	}
	return nil
}
