package adapter

import (
	"context"
	"sync"
	"time"

	"dmsync/internal/infrastructure/cache/port"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKV is an in-process port.KV used in tests and when no Redis URL is
// configured. The engine must behave identically with or without a durable
// cache, so this is a first-class adapter, not a test double.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]memoryEntry)}
}

var _ port.KV = (*MemoryKV)(nil)

func (m *MemoryKV) ReadKey(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", port.ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", port.ErrMiss
	}
	return entry.value, nil
}

func (m *MemoryKV) WriteKey(ctx context.Context, key string, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) RemoveKey(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
