// Package cache stores encoded scan results keyed by image hash.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
)

// KeyPrefix namespaces scan entries in shared stores
const KeyPrefix = "slipguard:scan:"

// Store is a byte cache with per-entry expiry
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New returns a RedisStore when redisURL is set, otherwise a MemoryStore
func New(ctx context.Context, redisURL string, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Get()
	}
	if redisURL == "" {
		log.Debug("Using in-memory scan cache")
		return NewMemoryStore(), nil
	}
	return NewRedisStore(ctx, redisURL, log)
}

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns a live entry. Expired entries are dropped on access.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a copy of value. A non-positive ttl deletes the key.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}

	m.sweep()
	m.entries[key] = entry{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// sweep drops expired entries; callers hold mu
func (m *MemoryStore) sweep() {
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
