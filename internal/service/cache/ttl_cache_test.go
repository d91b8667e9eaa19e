package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTTLCache[int](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestTTLCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTTLCache[string](2, 0)
	c.now = func() time.Time { return now }

	c.Set("a", "A")
	now = now.Add(time.Second)
	c.Set("b", "B")
	now = now.Add(time.Second)
	c.Get("a")
	now = now.Add(time.Second)
	c.Set("c", "C")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}

func TestGetOrCreateBuildsOnce(t *testing.T) {
	c := NewTTLCache[int](2, time.Minute)
	calls := 0
	for i := 0; i < 3; i++ {
		c.GetOrCreate("k", func() int { calls++; return 7 })
	}
	if calls != 1 {
		t.Fatalf("create called %d times", calls)
	}
}
