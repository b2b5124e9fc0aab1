package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(maxSize int) (*Cache, *fakeClock) {
	clk := newFakeClock()
	return New(maxSize, time.Minute, WithClock(clk.Now)), clk
}

func TestGetAfterSetReturnsValue(t *testing.T) {
	c, _ := newTestCache(10)

	c.Set("menu:all", []string{"tea", "coffee"}, time.Minute)

	v, ok := c.Get("menu:all")
	require.True(t, ok)
	assert.Equal(t, []string{"tea", "coffee"}, v)
}

func TestGetMissingKey(t *testing.T) {
	c, _ := newTestCache(10)

	_, ok := c.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestEntryExpiresAtTTL(t *testing.T) {
	c, clk := newTestCache(10)
	c.Set("inventory:all", 1, 30*time.Second)

	clk.Advance(29 * time.Second)
	_, ok := c.Get("inventory:all")
	assert.True(t, ok, "entry should be visible before ttl")

	clk.Advance(time.Second) // now - created_at == ttl
	_, ok = c.Get("inventory:all")
	assert.False(t, ok, "entry should be absent once now-created_at >= ttl")
	assert.Equal(t, 0, c.Len(), "expired entry should be purged on lookup")
	assert.Equal(t, uint64(1), c.Stats().Expirations)
}

func TestSetUsesDefaultTTL(t *testing.T) {
	c, clk := newTestCache(10)
	c.Set("k", "v", 0)

	clk.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestEvictsOldestInserted(t *testing.T) {
	c, _ := newTestCache(3)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	// Reading "a" does not protect it: eviction is by insertion order.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4, 0)

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("a")
	assert.False(t, ok, "oldest-inserted entry should be evicted")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %s should survive", k)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Set("a", 10, 0)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// "a" was re-inserted, so "b" is now the oldest.
	c.Set("c", 3, 0)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestNeverExceedsMaxSize(t *testing.T) {
	c, _ := newTestCache(5)
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
		assert.LessOrEqual(t, c.Len(), 5)
	}
	assert.Equal(t, uint64(45), c.Stats().Evictions)
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestInvalidateFamily(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("inventory:all", 1, 0)
	c.Set("inventory:low", 2, 0)
	c.Set("report:2026-03-01", 3, 0)

	c.Invalidate("inventory")

	_, ok := c.Get("inventory:all")
	assert.False(t, ok)
	_, ok = c.Get("inventory:low")
	assert.False(t, ok)
	_, ok = c.Get("report:2026-03-01")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Generation("inventory"))
}

func TestSetIfGenerationRejectsStaleValue(t *testing.T) {
	c, _ := newTestCache(10)
	gen := c.Generation("inventory")

	c.Invalidate("inventory")

	stored := c.SetIfGeneration("inventory:all", "stale", 0, gen)
	assert.False(t, stored)
	_, ok := c.Get("inventory:all")
	assert.False(t, ok)
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "report", Family("report:2026-01-01:2026-01-31:raw"))
	assert.Equal(t, "plain", Family("plain"))
}

func TestConcurrentAccess(t *testing.T) {
	c := New(64, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("fam%d:%d", g%4, i%80)
				c.Set(key, i, 0)
				if v, ok := c.Get(key); ok {
					_, isInt := v.(int)
					assert.True(t, isInt)
				}
				if i%50 == 0 {
					c.Invalidate(fmt.Sprintf("fam%d", g%4))
				}
				if i%97 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}

func TestGetOrLoadCachesValue(t *testing.T) {
	c, _ := newTestCache(10)
	rt := NewReadThrough(c)
	var calls int32

	load := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(context.Background(), rt, "report:x", 0, load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	c, _ := newTestCache(10)
	rt := NewReadThrough(c)
	boom := errors.New("db down")

	_, err := GetOrLoad(context.Background(), rt, "report:x", 0, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoadDropsValueInvalidatedDuringLoad(t *testing.T) {
	c, _ := newTestCache(10)
	rt := NewReadThrough(c)

	v, err := GetOrLoad(context.Background(), rt, "inventory:all", 0, func(ctx context.Context) (string, error) {
		// a write lands and invalidates while the read is in flight
		c.Invalidate("inventory")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v, "the caller still gets its own read")

	_, ok := c.Get("inventory:all")
	assert.False(t, ok, "a value loaded before invalidation must not be cached")
}

func TestGetOrLoadWrongTypeIsMiss(t *testing.T) {
	c, _ := newTestCache(10)
	rt := NewReadThrough(c)
	c.Set("k", "a string", 0)

	v, err := GetOrLoad(context.Background(), rt, "k", 0, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	c := New(10, time.Minute)
	rt := NewReadThrough(c)
	var calls int32
	release := make(chan struct{})

	load := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := GetOrLoad(context.Background(), rt, "menu:availability", 0, load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestGetOrLoadSurvivesCancelledCaller(t *testing.T) {
	c, _ := newTestCache(10)
	rt := NewReadThrough(c)
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	load := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "fresh", ctx.Err()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := GetOrLoad(firstCtx, rt, "report:x", 0, load)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := GetOrLoad(context.Background(), rt, "report:x", 0, load)
		second <- result{v, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, "fresh", r.v)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	v, ok := c.Get("report:x")
	require.True(t, ok, "the shared load still populates the cache")
	assert.Equal(t, "fresh", v)
}
