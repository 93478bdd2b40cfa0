package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces gateway sessions in Redis.
const DefaultKeyPrefix = "portal:session:"

// RedisStore implements SessionStore on Redis. Keys expire with the record so
// Redis does the cleanup.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis session store. An empty prefix uses
// DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+rec.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	// The key TTL follows ExpiresAt, but the portal session can end first.
	if rec.IsExpired() {
		if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
			return nil, fmt.Errorf("cleanup expired session: %w", err)
		}
		return nil, ErrSessionExpired
	}

	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrSessionNotFound
	}

	n, err := s.client.Del(ctx, s.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired is a no-op, Redis expires keys on its own.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
