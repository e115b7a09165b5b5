package cache

import (
	"context"
	"sync"
	"time"

	"labourpanel/internal/domain/labour"
)

type memoryEntry struct {
	snap    labour.Snapshot
	expires time.Time
}

// MemoryCache is the in-process store used when REDIS_ADDR is unset.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Put(_ context.Context, key string, snap labour.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Loading = false
	m.entries[key] = memoryEntry{snap: snap, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (labour.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return labour.Snapshot{}, false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return labour.Snapshot{}, false, nil
	}
	return entry.snap, true, nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) Ping(context.Context) error {
	return nil
}
