package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// storageKey is the fixed name the serialized session lives under. It
// matches what the rest of the platform expects, so a session written here
// survives process restarts and is visible to sibling tooling.
const storageKey = "restokit:session"

// RedisStore persists the credential as a Redis hash under a fixed key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a credential store backed by Redis. The optional
// prefix namespaces the session key per deployment.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key() string {
	if s.prefix == "" {
		return storageKey
	}
	return fmt.Sprintf("%s:%s", s.prefix, storageKey)
}

// Current implements Store.Current.
func (s *RedisStore) Current(ctx context.Context) (*Credential, error) {
	res, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	expUnix, err := strconv.ParseInt(res["accessTokenExp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session expiry: %w", err)
	}

	return &Credential{
		AccessToken:   res["accessToken"],
		RefreshToken:  res["refreshToken"],
		ExpiresAt:     time.Unix(expUnix, 0),
		Authenticated: res["isAuthenticated"] == "1",
	}, nil
}

// Set implements Store.Set. The whole hash is replaced in one MULTI/EXEC
// so a concurrent reader never observes a half-written pair.
func (s *RedisStore) Set(ctx context.Context, accessToken, refreshToken string) error {
	expiresAt, err := tokenExpiry(accessToken)
	if err != nil {
		return err
	}

	entry := map[string]interface{}{
		"accessToken":     accessToken,
		"refreshToken":    refreshToken,
		"accessTokenExp":  expiresAt.Unix(),
		"isAuthenticated": "1",
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key())
	pipe.HSet(ctx, s.key(), entry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session to redis: %w", err)
	}

	return nil
}

// Clear implements Store.Clear.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear session in redis: %w", err)
	}

	return nil
}
