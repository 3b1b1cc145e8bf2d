package cache

import "sync"

// Cache is a string-keyed in-memory cache of V.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Reset()
}

// InMemoryCache is a thread-safe in-memory cache.
type InMemoryCache[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewInMemoryCache creates a new instance of InMemoryCache.
func NewInMemoryCache[V any]() *InMemoryCache[V] {
	return &InMemoryCache[V]{
		items: make(map[string]V),
	}
}

// Get retrieves a value from the cache.
func (c *InMemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, found := c.items[key]
	return item, found
}

// Set adds a value to the cache, overwriting an existing one if present.
func (c *InMemoryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// Reset drops every entry.
func (c *InMemoryCache[V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]V)
}

// Len returns the number of entries.
func (c *InMemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
