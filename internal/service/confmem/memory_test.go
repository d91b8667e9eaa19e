package confmem

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"DeepResearch/pkg/cache"
)

func TestApplySmoothsAgainstPrevious(t *testing.T) {
	m := New()
	defer m.Close()

	first := m.Apply("BTCUSDT:1h", func(prev float64, ok bool) float64 {
		if ok {
			t.Fatalf("unexpected previous value %v", prev)
		}
		return 60
	})
	if first != 60 {
		t.Fatalf("first = %v", first)
	}
	got := m.Apply("BTCUSDT:1h", func(prev float64, ok bool) float64 {
		return 0.7*90 + 0.3*prev
	})
	if got != 81 {
		t.Fatalf("smoothed = %v, want 81", got)
	}
	if v, ok := m.Peek("BTCUSDT:1h"); !ok || v != 81 {
		t.Fatalf("peek = %v %v", v, ok)
	}
}

func TestApplySerializesSameKey(t *testing.T) {
	m := New()
	defer m.Close()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Apply("ETHUSDT:5m", func(prev float64, _ bool) float64 {
				time.Sleep(time.Millisecond)
				return prev + 1
			})
		}()
	}
	wg.Wait()

	if v, _ := m.Peek("ETHUSDT:5m"); v != workers {
		t.Fatalf("lost updates: got %v, want %d", v, workers)
	}
	m.mu.Lock()
	leaked := len(m.locks)
	m.mu.Unlock()
	if leaked != 0 {
		t.Fatalf("%d key locks left behind", leaked)
	}
}

func TestBoundedBySizeAndAge(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	m := New(WithMaxEntries(3), WithTTL(time.Hour), WithCacheOptions(cache.WithMemoryClock(clock)))
	defer m.Close()

	for i := 0; i < 10; i++ {
		m.Apply(fmt.Sprintf("S%d:1h", i), func(float64, bool) float64 { return 50 })
	}
	if m.Len() != 3 {
		t.Fatalf("len = %d, want 3", m.Len())
	}

	now = now.Add(2 * time.Hour)
	if _, ok := m.Peek("S9:1h"); ok {
		t.Fatalf("entry older than ttl should be gone")
	}
}
