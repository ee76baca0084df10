package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Cache is a typed view over one key of a SessionStore.
type Cache[T any] struct {
	store  SessionStore
	key    string
	logger zerolog.Logger
}

func NewCache[T any](s SessionStore, key string, logger zerolog.Logger) *Cache[T] {
	return &Cache[T]{
		store:  s,
		key:    key,
		logger: logger.With().Str("cache_key", key).Logger(),
	}
}

// Key returns the store key this cache reads and writes.
func (c *Cache[T]) Key() string { return c.key }

// Load returns the cached value. Store failures and entries that no longer
// decode are reported as a miss.
func (c *Cache[T]) Load(ctx context.Context, session string) (T, bool) {
	var zero T
	b, err := c.store.Get(ctx, session, c.key)
	if errors.Is(err, ErrCacheMiss) {
		return zero, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("session", session).Msg("cache read failed, treating as miss")
		return zero, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		c.logger.Warn().Err(err).Str("session", session).Msg("corrupt cache entry, treating as miss")
		return zero, false
	}
	return v, true
}

// Encode returns the bytes Store would write for v.
func (c *Cache[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", c.key, err)
	}
	return b, nil
}

// Store saves v unless its encoding equals current, the encoding of the
// snapshot the session already shows (nil: compare with the stored entry).
// An unchanged entry only has its expiry renewed, and is rewritten if it
// has lapsed. changed reports whether v differs from current, whatever
// happened to the write; enc is v's encoding.
func (c *Cache[T]) Store(ctx context.Context, session string, v T, current []byte) (enc []byte, changed bool, err error) {
	b, err := c.Encode(v)
	if err != nil {
		return nil, true, err
	}
	if current == nil {
		if prev, err := c.store.Get(ctx, session, c.key); err == nil {
			current = prev
		}
	}
	if !bytes.Equal(current, b) {
		return b, true, c.store.Set(ctx, session, c.key, b)
	}

	present, err := c.store.Touch(ctx, session, c.key)
	if err != nil {
		return b, false, err
	}
	if !present {
		c.logger.Debug().Str("session", session).Msg("cache entry lapsed, restoring")
		return b, false, c.store.Set(ctx, session, c.key, b)
	}
	return b, false, nil
}

// Clear drops the cached value.
func (c *Cache[T]) Clear(ctx context.Context, session string) error {
	return c.store.Delete(ctx, session, c.key)
}
