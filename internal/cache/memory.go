package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rohankatakam/addrlinks/internal/filter"
)

// MemoryResultCache keeps views in process
type MemoryResultCache struct {
	mem *cache.Cache
}

// NewMemoryResultCache creates an in-process result cache
func NewMemoryResultCache(ttl time.Duration) *MemoryResultCache {
	return &MemoryResultCache{mem: cache.New(ttlOrDefault(ttl), 10*time.Minute)}
}

func (m *MemoryResultCache) Get(ctx context.Context, key string) (*filter.View, bool, error) {
	v, ok := m.mem.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*filter.View), true, nil
}

func (m *MemoryResultCache) Set(ctx context.Context, key string, view *filter.View) error {
	m.mem.SetDefault(key, view)
	return nil
}

func (m *MemoryResultCache) Purge(ctx context.Context) error {
	m.mem.Flush()
	return nil
}

func (m *MemoryResultCache) Close() error { return nil }

// Len is the number of cached views, expired or not
func (m *MemoryResultCache) Len() int { return m.mem.ItemCount() }
