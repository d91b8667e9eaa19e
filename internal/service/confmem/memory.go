package confmem

import (
	"context"
	"sync"
	"time"

	"DeepResearch/internal/domain/service"
	"DeepResearch/pkg/cache"
)

// Memory keeps the last smoothed confidence per key in a size and age
// bounded cache. Read-modify-write on one key is serialized by a per-key
// mutex; different keys never contend.
type Memory struct {
	store *cache.MemoryCache
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

var _ service.ConfidenceMemory = (*Memory)(nil)

type Option func(*options)

type options struct {
	maxEntries int
	ttl        time.Duration
	cacheOpts  []cache.MemoryOption
}

func WithMaxEntries(n int) Option { return func(o *options) { o.maxEntries = n } }

func WithTTL(d time.Duration) Option { return func(o *options) { o.ttl = d } }

// WithCacheOptions passes extra options to the backing cache (clock, janitor).
func WithCacheOptions(opts ...cache.MemoryOption) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

func New(opts ...Option) *Memory {
	o := &options{maxEntries: 10000, ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(o)
	}
	copts := append([]cache.MemoryOption{
		cache.WithMemoryMaxSize(o.maxEntries),
		cache.WithMemoryDefaultTTL(o.ttl),
		cache.WithMemoryCleanup(10 * time.Minute),
	}, o.cacheOpts...)

	return &Memory{
		store: cache.NewMemoryCache(copts...),
		ttl:   o.ttl,
		locks: make(map[string]*keyLock),
	}
}

func (m *Memory) acquire(key string) *keyLock {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return l
}

func (m *Memory) release(key string, l *keyLock) {
	l.mu.Unlock()

	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

func (m *Memory) Apply(key string, next func(prev float64, ok bool) float64) float64 {
	l := m.acquire(key)
	defer m.release(key, l)

	ctx := context.Background()
	prev, err := cache.GetTyped[float64](ctx, m.store, key)
	v := next(prev, err == nil)
	_ = m.store.Set(ctx, key, v, m.ttl)
	return v
}

func (m *Memory) Peek(key string) (float64, bool) {
	v, err := cache.GetTyped[float64](context.Background(), m.store, key)
	return v, err == nil
}

// Len is the number of remembered keys.
func (m *Memory) Len() int { return m.store.Len() }

// Close stops the backing cache janitor.
func (m *Memory) Close() error { return m.store.Close() }
