package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in redis under session:<id>:<key> with a TTL,
// so abandoned sessions expire on their own.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(session, key string) string {
	return fmt.Sprintf("session:%s:%s", session, key)
}

func (r *RedisStore) Get(ctx context.Context, session, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, redisKey(session, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (r *RedisStore) Set(ctx context.Context, session, key string, value []byte) error {
	if err := r.rdb.Set(ctx, redisKey(session, key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, session string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, redisKey(session, k))
	}
	if err := r.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Touch pushes the key's expiry out by the store TTL. It reports false when
// the key has already lapsed.
func (r *RedisStore) Touch(ctx context.Context, session, key string) (bool, error) {
	k := redisKey(session, key)
	if r.ttl <= 0 {
		n, err := r.rdb.Exists(ctx, k).Result()
		if err != nil {
			return false, fmt.Errorf("redis exists %s: %w", key, err)
		}
		return n > 0, nil
	}
	ok, err := r.rdb.Expire(ctx, k, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis expire %s: %w", key, err)
	}
	return ok, nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
