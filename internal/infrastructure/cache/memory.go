package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"household-catalog/pkg/cache"
)

// MemoryCache giữ bytes JSON trong map. Không persist qua restart,
// dùng cho test và LOCAL_CACHE_DRIVER=memory.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	closed  bool
	failSet error
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

var _ cache.Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem)}
}

// FailWrites làm mọi Set sau đó trả về err (nil để tắt).
func (c *MemoryCache) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSet = err
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, found, err := c.GetRaw(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("memory cache: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *MemoryCache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false, cache.ErrCacheClosed
	}
	item, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		return nil, false, nil
	}
	out := make([]byte, len(item.data))
	copy(out, item.data)
	return out, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory cache: marshal %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrCacheClosed
	}
	if c.failSet != nil {
		return c.failSet
	}
	item := memoryItem{data: data}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	c.items[key] = item
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.GetRaw(ctx, key)
	return found, err
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return cache.ErrCacheClosed
	}
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
