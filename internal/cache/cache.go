// Package cache wraps the Redis client in the small capability surface the
// rest of the application needs. The same store serves two roles: a
// read-through cache for user and dashboard projections, and a TTL-bounded
// single-use ledger for replay nonces and duplicate pre-check hints. The
// ledger role is why SetNX is part of the interface: a nonce claim must be
// one atomic set-if-absent call, never a check-then-set pair.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the capability interface over the TTL-keyed string store.
// Values are small JSON documents or "1" markers; nothing here is
// authoritative, the database remains the source of truth on any miss.
type Store interface {
	// Get returns the value at key, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (val string, ok bool, err error)
	// SetEX stores value at key with the given TTL, replacing any
	// existing value.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value at key with the given TTL only when the key
	// does not exist. It reports whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *redisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.SetEx(ctx, key, value, ttl).Err()
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
