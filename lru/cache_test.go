package lru

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClocked[K comparable, V any](capacity int, ttl time.Duration) (*Cache[K, V], *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[K, V](capacity, ttl)
	c.now = clk.now
	return c, clk
}

func TestBasicGetPut(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v %v", v, ok)
	}
}

func TestEviction(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // "b" becomes LRU

	if !c.Put("c", 3) {
		t.Fatal("expected an eviction")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used a should survive")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should be gone")
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}

func TestUpdateExisting(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	if c.Put("a", 10) {
		t.Fatal("update must not evict")
	}
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("expected 10, got %d", v)
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](3, 0)
	c.Put("a", 1)
	c.Put("b", 2)

	if !c.Delete("a") {
		t.Fatal("expected delete to report existing key")
	}
	if c.Delete("a") {
		t.Fatal("second delete should report false")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestPanicOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New[string, int](0, 0)
}

func TestTTLExpiration(t *testing.T) {
	c, clk := newClocked[string, string](4, time.Minute)
	c.Put("U1", "alice")

	clk.advance(59 * time.Second)
	if v, ok := c.Get("U1"); !ok || v != "alice" {
		t.Fatalf("expected live entry, got %q %v", v, ok)
	}

	clk.advance(time.Second)
	if _, ok := c.Get("U1"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry should be dropped on access")
	}
}

func TestPutWithTTL(t *testing.T) {
	c, clk := newClocked[string, int](4, time.Minute)
	c.PutWithTTL("forever", 1, 0)
	c.PutWithTTL("short", 2, time.Second)

	clk.advance(time.Hour)
	if _, ok := c.Get("forever"); !ok {
		t.Fatal("zero ttl entry must not expire")
	}
	if _, ok := c.Get("short"); ok {
		t.Fatal("short entry should have expired")
	}
}

func TestUpdateResetsTTL(t *testing.T) {
	c, clk := newClocked[string, int](2, time.Minute)
	c.Put("a", 1)
	clk.advance(50 * time.Second)
	c.Put("a", 2)
	clk.advance(50 * time.Second)

	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("expected refreshed entry, got %v %v", v, ok)
	}
}

func TestPurge(t *testing.T) {
	c, clk := newClocked[string, int](4, time.Minute)
	c.Put("old", 1)
	clk.advance(30 * time.Second)
	c.Put("new", 2)
	clk.advance(31 * time.Second)

	if n := c.Purge(); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 left, got %d", c.Len())
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatal("live entry must survive a purge")
	}
	if s := c.Stats(); s.Expirations != 1 {
		t.Fatalf("expected 1 expiration, got %d", s.Expirations)
	}
}

func TestStats(t *testing.T) {
	c, clk := newClocked[string, int](1, time.Minute)
	c.Put("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Put("b", 2) // evicts a
	clk.advance(time.Minute)
	c.Get("b") // expired

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 || s.Evictions != 1 || s.Expirations != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.HitRate() < 0.33 || s.HitRate() > 0.34 {
		t.Fatalf("unexpected hit rate %f", s.HitRate())
	}
	if (Stats{}).HitRate() != 0 {
		t.Fatal("empty stats should report 0")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](64, time.Minute)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := (g*1000 + i) % 128
				c.Put(k, i)
				c.Get(k)
				if i%100 == 0 {
					c.Purge()
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}
}
