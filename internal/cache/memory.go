package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache keeps credentials in process memory. Entries are dropped lazily
// when read after expiry. Suitable for a single instance only.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache using the wall clock.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock creates an empty MemoryCache reading time from now.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: now}
}

// Get returns the value if present and not expired.
func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value. ttl <= 0 means no expiry.
func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (m *MemoryCache) Ping(context.Context) error {
	return nil
}
