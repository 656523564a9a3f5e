package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/it35lab/campusfeed/model"
	"github.com/pkg/errors"
)

const (
	DefaultSessionTTL = 30 * 24 * time.Hour

	redisSessionKeyPrefix = "session__"
)

// SessionStore persists the current session of each client so a returning
// client resumes without signing in again.
type SessionStore interface {
	// Load returns nil and no error when the client has no session.
	Load(ctx context.Context, clientKey string) (*model.AuthSession, error)
	Save(ctx context.Context, clientKey string, session *model.AuthSession) error
	Delete(ctx context.Context, clientKey string) error
}

type RedisSessionStore struct {
	inner *redis.Client
	ttl   time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{inner: client, ttl: ttl}
}

func (r *RedisSessionStore) Load(ctx context.Context, clientKey string) (*model.AuthSession, error) {
	data, err := r.inner.Get(ctx, redisSessionKeyPrefix+clientKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	var session model.AuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &session, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, clientKey string, session *model.AuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return errors.Wrap(r.inner.Set(ctx, redisSessionKeyPrefix+clientKey, data, r.ttl).Err(), "save session")
}

func (r *RedisSessionStore) Delete(ctx context.Context, clientKey string) error {
	return errors.Wrap(r.inner.Del(ctx, redisSessionKeyPrefix+clientKey).Err(), "delete session")
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.AuthSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]model.AuthSession)}
}

func (m *MemorySessionStore) Load(ctx context.Context, clientKey string) (*model.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[clientKey]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessionStore) Save(ctx context.Context, clientKey string, session *model.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[clientKey] = *session
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, clientKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, clientKey)
	return nil
}
