package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	authkit "github.com/edupoints/authkit-go"
)

// DefaultRedisTTL bounds how long a persisted session outlives its last
// write. Matches the typical refresh-token lifetime.
const DefaultRedisTTL = 30 * 24 * time.Hour

// Redis stores session keys in Redis, namespaced by prefix. Intended for
// hosted portal deployments where one store instance exists per user
// session (the prefix carries the session identity).
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ authkit.TokenStore = (*Redis)(nil)

// RedisOption configures the Redis store.
type RedisOption func(*Redis)

// WithPrefix namespaces all keys, e.g. "session:<id>:".
func WithPrefix(prefix string) RedisOption {
	return func(s *Redis) { s.prefix = prefix }
}

// WithTTL sets the expiry applied on every Set.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *Redis) { s.ttl = ttl }
}

// NewRedis creates a Redis-backed store on an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		client: client,
		prefix: "authkit:",
		ttl:    DefaultRedisTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", key, err)
	}
	return nil
}

func (s *Redis) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("store: redis del %s: %w", key, err)
	}
	return nil
}
