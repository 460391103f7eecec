package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bobarin/wellvoice/internal/models"
)

// MemoryBackend keeps entries in process memory. Used for development
// (CACHE_BACKEND=memory) and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[memoryKey]models.CacheEntry
}

type memoryKey struct {
	owner string
	key   string
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[memoryKey]models.CacheEntry)}
}

func (m *MemoryBackend) GetCacheEntry(ctx context.Context, ownerID, key string, now time.Time) (*models.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[memoryKey{ownerID, key}]
	if !ok || entry.Expired(now) {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryBackend) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[memoryKey{entry.OwnerID, entry.Key}] = *entry
	return nil
}

func (m *MemoryBackend) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of physically stored entries, expired included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
