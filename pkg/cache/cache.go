package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val V
	exp time.Time
}

// MemoryCache is a TTL map. A zero TTL disables it: Set is a no-op and Get
// always misses.
type MemoryCache[V any] struct {
	mu  sync.RWMutex
	m   map[string]entry[V]
	ttl time.Duration
	now func() time.Time
}

func NewMemory[V any](ttl time.Duration) *MemoryCache[V] {
	return &MemoryCache[V]{m: make(map[string]entry[V]), ttl: ttl, now: time.Now}
}

func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok || c.now().After(e.exp) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (c *MemoryCache[V]) Set(key string, val V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// drop expired entries so removed files do not pin memory
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
		}
	}
	c.m[key] = entry[V]{val: val, exp: now.Add(c.ttl)}
}

func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
