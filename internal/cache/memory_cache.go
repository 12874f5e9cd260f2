package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache - CacheRepo в памяти процесса. Используется, когда Redis не настроен.
type MemoryCache struct {
	mu          sync.RWMutex
	items       map[string]memoryItem
	defaultTTL  time.Duration
	invalidator CacheInvalidator
	metrics     metricsRecorder
	now         func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // нулевое - без истечения
}

// NewMemoryCache создаёт кеш в памяти. invalidator может быть nil.
func NewMemoryCache(defaultTTL time.Duration, invalidator CacheInvalidator) *MemoryCache {
	return &MemoryCache{
		items:       make(map[string]memoryItem),
		defaultTTL:  defaultTTL,
		invalidator: invalidator,
		now:         time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	start := time.Now()
	defer m.metrics.recordLatency(start)

	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || (!item.expiresAt.IsZero() && m.now().After(item.expiresAt)) {
		m.metrics.miss()
		return nil, ErrCacheMiss
	}
	m.metrics.hit()
	return append([]byte(nil), item.value...), nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Invalidate(ctx context.Context, key string) error {
	m.Delete(ctx, key)
	if m.invalidator != nil {
		return m.invalidator.PublishInvalidation(ctx, key)
	}
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCache) Close() error {
	return nil
}

func (m *MemoryCache) GetMetrics() *CacheMetrics {
	return m.metrics.snapshot()
}
