// Package tokens persists the credentials issued by a successful,
// non-redirecting authentication for later use by the embedding client.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Fixed keys under which a client's credentials are stored.
const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user_data"
)

var ErrNoClient = errors.New("tokens: client id required")

type Tokens struct {
	AccessToken  string
	RefreshToken string
	User         json.RawMessage
}

func (t Tokens) fields() map[string]any {
	user := string(t.User)
	if user == "" {
		user = "null"
	}
	return map[string]any{
		KeyAccessToken:  t.AccessToken,
		KeyRefreshToken: t.RefreshToken,
		KeyUser:         user,
	}
}

// Store writes a client's tokens. No expiry is managed here.
type Store interface {
	Save(ctx context.Context, clientID string, t Tokens) error
	Load(ctx context.Context, clientID string) (map[string]string, error)
}

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store { return &redisStore{rdb: rdb} }

func redisKey(clientID string) string { return "widget:client:" + clientID }

func (s *redisStore) Save(ctx context.Context, clientID string, t Tokens) error {
	if clientID == "" {
		return ErrNoClient
	}
	if err := s.rdb.HSet(ctx, redisKey(clientID), t.fields()).Err(); err != nil {
		return fmt.Errorf("tokens: redis hset: %w", err)
	}
	return nil
}

func (s *redisStore) Load(ctx context.Context, clientID string) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, redisKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("tokens: redis hgetall: %w", err)
	}
	return m, nil
}

type memoryStore struct {
	mu      sync.RWMutex
	clients map[string]map[string]string
}

// NewMemoryStore is the single-process fallback used without REDIS_URL.
func NewMemoryStore() Store { return &memoryStore{clients: map[string]map[string]string{}} }

func (s *memoryStore) Save(_ context.Context, clientID string, t Tokens) error {
	if clientID == "" {
		return ErrNoClient
	}
	m := map[string]string{}
	for k, v := range t.fields() {
		m[k] = v.(string)
	}
	s.mu.Lock()
	s.clients[clientID] = m
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Load(_ context.Context, clientID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]string{}
	for k, v := range s.clients[clientID] {
		out[k] = v
	}
	return out, nil
}
