package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	v    V
	exp  time.Time
	used time.Time
}

// TTLCache holds live in-process values (clients, adapters) that cannot go
// through the JSON caches in pkg/cache. When full, the least recently used
// entry is dropped.
type TTLCache[V any] struct {
	mu  sync.Mutex
	m   map[string]*entry[V]
	max int
	ttl time.Duration
	now func() time.Time
}

func NewTTLCache[V any](max int, ttl time.Duration) *TTLCache[V] {
	if max <= 0 {
		max = 256
	}
	return &TTLCache[V]{m: make(map[string]*entry[V]), max: max, ttl: ttl, now: time.Now}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.m[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if !e.exp.IsZero() && now.After(e.exp) {
		delete(c.m, key)
		return zero, false
	}
	e.used = now
	return e.v, true
}

func (c *TTLCache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, v)
}

// GetOrCreate returns the cached value or stores the one built by create.
// create runs under the cache lock and must not block.
func (c *TTLCache[V]) GetOrCreate(key string, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[key]; ok {
		now := c.now()
		if e.exp.IsZero() || !now.After(e.exp) {
			e.used = now
			return e.v
		}
	}
	v := create()
	c.set(key, v)
	return v
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache[V]) set(key string, v V) {
	now := c.now()
	var exp time.Time
	if c.ttl > 0 {
		exp = now.Add(c.ttl)
	}
	if _, ok := c.m[key]; !ok && len(c.m) >= c.max {
		c.evict(now)
	}
	c.m[key] = &entry[V]{v: v, exp: exp, used: now}
}

// evict drops expired entries, or the least recently used one if none expired.
func (c *TTLCache[V]) evict(now time.Time) {
	var oldest string
	var oldestAt time.Time
	dropped := false
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
			dropped = true
			continue
		}
		if oldest == "" || e.used.Before(oldestAt) {
			oldest, oldestAt = k, e.used
		}
	}
	if !dropped && oldest != "" {
		delete(c.m, oldest)
	}
}
