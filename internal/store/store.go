// Package store holds per-session feed snapshots.
//
// SessionStore is the raw key-value layer (memory or redis). Cache wraps it
// with JSON encoding, read-as-miss on corrupt entries and write-on-difference.
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrCacheMiss is returned when a session has no value under a key.
var ErrCacheMiss = errors.New("cache miss")

// Snapshot keys.
const (
	KeyFestivals = "festivals"
	// KeyEvents holds the time-sensitive events feed and is cleared on unload.
	KeyEvents = "events"
)

// SessionStore is a session-scoped byte store.
type SessionStore interface {
	Get(ctx context.Context, session, key string) ([]byte, error)
	Set(ctx context.Context, session, key string, value []byte) error
	Delete(ctx context.Context, session string, keys ...string) error
	// Touch renews the entry's expiry and reports whether it still exists.
	Touch(ctx context.Context, session, key string) (bool, error)
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, session, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[session][key]
	if !ok {
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, session, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.data[session]
	if !ok {
		keys = make(map[string][]byte)
		m.data[session] = keys
	}
	v := make([]byte, len(value))
	copy(v, value)
	keys[key] = v
	return nil
}

// Delete removes the given keys; the session entry goes away with its last key.
func (m *MemoryStore) Delete(_ context.Context, session string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.data[session]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(sess, k)
	}
	if len(sess) == 0 {
		delete(m.data, session)
	}
	return nil
}

// Touch reports whether the key is present. Memory entries do not expire.
func (m *MemoryStore) Touch(_ context.Context, session, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[session][key]
	return ok, nil
}

// Sessions returns the number of sessions holding at least one key.
func (m *MemoryStore) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
