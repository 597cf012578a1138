package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }

	value := []byte(`{"status":"success"}`)
	if err := m.Set(ctx, "abc", value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value[0] = 'X'

	got, ok, err := m.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, want hit", ok, err)
	}
	if string(got) != `{"status":"success"}` {
		t.Errorf("Get() = %s, stored value was aliased", got)
	}

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Error("Get(missing) reported a hit")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "abc"); ok {
		t.Error("Get() returned an expired entry")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expiry", m.Len())
	}
}

func TestMemoryStore_SweepAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemoryStore()
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "old", []byte("1"), time.Second)
	now = now.Add(2 * time.Second)
	_ = m.Set(ctx, "new", []byte("2"), time.Minute)
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", m.Len())
	}

	_ = m.Set(ctx, "new", nil, 0)
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after zero-ttl set", m.Len())
	}
}

func TestNew(t *testing.T) {
	store, err := New(context.Background(), "", logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("New(\"\") = %T, want *MemoryStore", store)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "http://not-redis", logger.Nop())
	if err == nil || !strings.Contains(err.Error(), "parse Redis URL") {
		t.Errorf("NewRedisStore() error = %v, want parse error", err)
	}
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// port 1 is never a redis server
	_, err := NewRedisStore(ctx, "redis://127.0.0.1:1/0", logger.Nop())
	if err == nil || !strings.Contains(err.Error(), "connect to Redis") {
		t.Errorf("NewRedisStore() error = %v, want connection error", err)
	}
}
