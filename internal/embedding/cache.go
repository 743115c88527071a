package embedding

import (
	"context"
	"sync"
)

// CacheMetrics is the interface for recording cache metrics.
// This keeps the cache decoupled from the metrics package.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	UpdateCacheSize(cacheType string, size int)
}

// Cache stores query vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) (*Vectors, bool)
	Set(ctx context.Context, key string, v *Vectors)
	Size() int
}

// MemoryCache is a bounded LRU cache.
type MemoryCache struct {
	mu      sync.Mutex
	cache   map[string]*Vectors
	maxSize int
	order   []string // LRU order, oldest first
	metrics CacheMetrics
}

// NewMemoryCache creates an LRU cache holding up to maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	return &MemoryCache{
		cache:   make(map[string]*Vectors),
		maxSize: maxSize,
		order:   make([]string, 0, maxSize),
	}
}

// SetMetrics sets the metrics recorder for this cache.
func (c *MemoryCache) SetMetrics(metrics CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Get retrieves a copy of the cached vectors.
func (c *MemoryCache) Get(_ context.Context, key string) (*Vectors, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.cache[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss("memory")
		}
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit("memory")
	}
	c.moveToEnd(key)
	return v.clone(), true
}

// Set stores a copy of v, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, v *Vectors) {
	stored := v.clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; exists {
		c.cache[key] = stored
		c.moveToEnd(key)
		return
	}

	for len(c.cache) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}

	c.cache[key] = stored
	c.order = append(c.order, key)

	if c.metrics != nil {
		c.metrics.UpdateCacheSize("memory", len(c.cache))
	}
}

// moveToEnd marks key as most recently used (must hold lock).
func (c *MemoryCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// Size returns the current number of entries.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
