package utils

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

// StatusStore keeps a per-user boolean status of items, for example whether
// a notification has been read.
type StatusStore interface {
	GetItemsReadStatus(ctx context.Context, itemIds []string, userId string) ([]bool, error)
	SetItemsReadStatus(ctx context.Context, itemIds []string, userId string, read bool) error
}

type RedisStatusStore struct {
	inner     *redis.Client
	keyParser RedisKeyParser
}

const (
	// Redis only has string type, there is no boolean or int, so we use "1" to represent true
	RedisTrue  = "1"
	RedisFalse = "0"
)

// GetRedisClient builds a client from REDIS_HOST, REDIS_PORT and
// REDIS_PASSWD.
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
}

// IsRedisConfigured reports whether env points to a redis server.
func IsRedisConfigured() bool {
	return os.Getenv("REDIS_HOST") != ""
}

func GetRedisStatusStore(ctx context.Context) (*RedisStatusStore, error) {
	redisClient := GetRedisClient()
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return NewRedisStatusStore(redisClient), nil
}

func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{
		inner:     client,
		keyParser: RedisKeyParser{delimiter: "__"},
	}
}

type RedisKeyParser struct {
	delimiter string
}

func (r RedisKeyParser) DecodeItemKey(key string) (string, string, error) {
	splits := strings.Split(key, r.delimiter)
	if (len(splits)) != 2 {
		return "", "", fmt.Errorf("invalid key: %s", key)
	}
	return splits[0], splits[1], nil
}

func (r RedisKeyParser) ValidateId(id string) bool {
	return !strings.Contains(id, r.delimiter)
}

func (r RedisKeyParser) EncodeItemKey(userId string, itemId string) (string, error) {
	if !r.ValidateId(userId) || !r.ValidateId(itemId) {
		return "", fmt.Errorf("invalid userId or itemId")
	}
	return fmt.Sprintf("%s%s%s", userId, r.delimiter, itemId), nil
}

func (r *RedisStatusStore) encodeKeys(itemIds []string, userId string) ([]string, error) {
	keys := make([]string, 0, len(itemIds))
	for _, id := range itemIds {
		key, err := r.keyParser.EncodeItemKey(userId, id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (r *RedisStatusStore) GetItemsReadStatus(ctx context.Context, itemIds []string, userId string) ([]bool, error) {
	if len(itemIds) == 0 {
		return []bool{}, nil
	}

	keys, err := r.encodeKeys(itemIds, userId)
	if err != nil {
		return nil, err
	}

	res, err := r.inner.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	status := []bool{}
	for _, v := range res {
		// watchout, MGet returns nil for missing keys
		status = append(status, v == RedisTrue)
	}
	return status, nil
}

func (r *RedisStatusStore) SetItemsReadStatus(ctx context.Context, itemIds []string, userId string, read bool) error {
	if len(itemIds) == 0 {
		return nil
	}

	keys, err := r.encodeKeys(itemIds, userId)
	if err != nil {
		return err
	}

	if read {
		keyValues := []interface{}{}
		for _, key := range keys {
			keyValues = append(keyValues, key, RedisTrue)
		}
		return r.inner.MSet(ctx, keyValues...).Err()
	}
	return r.inner.Del(ctx, keys...).Err()
}

// MemoryStatusStore is the in-process StatusStore used by the dev server and
// tests.
type MemoryStatusStore struct {
	mu   sync.RWMutex
	read map[string]map[string]bool
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{read: make(map[string]map[string]bool)}
}

func (m *MemoryStatusStore) GetItemsReadStatus(ctx context.Context, itemIds []string, userId string) ([]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make([]bool, 0, len(itemIds))
	for _, id := range itemIds {
		status = append(status, m.read[userId][id])
	}
	return status, nil
}

func (m *MemoryStatusStore) SetItemsReadStatus(ctx context.Context, itemIds []string, userId string, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.read[userId]; !ok {
		m.read[userId] = make(map[string]bool)
	}
	for _, id := range itemIds {
		if read {
			m.read[userId][id] = true
		} else {
			delete(m.read[userId], id)
		}
	}
	return nil
}
