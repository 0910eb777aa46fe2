package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New[string, int]("test", Config{MaxEntries: 10, TTL: time.Minute})
	defer c.Stop()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestSizeBoundHolds(t *testing.T) {
	c := New[int, int]("bound", Config{MaxEntries: 50, TTL: time.Minute})
	defer c.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(g*1000+i, i)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50, "cache must never exceed max entries")
}

func TestLRUEviction(t *testing.T) {
	c := New[string, int]("lru", Config{MaxEntries: 2, TTL: time.Minute})
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recently used
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "LRU entry should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New[string, int]("ttl", Config{MaxEntries: 10, TTL: 20 * time.Millisecond})
	defer c.Stop()

	c.Set("a", 1)
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "expired entry must not be returned")
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New[string, int]("sweep", Config{
		MaxEntries:      100,
		TTL:             10 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})
	defer c.Stop()

	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, c.Len(), "sweep should remove every expired entry")
}

func TestSlidingTTLRefreshesOnAccess(t *testing.T) {
	c := New[string, int]("sliding", Config{
		MaxEntries: 10,
		TTL:        50 * time.Millisecond,
		Sliding:    true,
	})
	defer c.Stop()

	c.Set("a", 1)
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		_, ok := c.Get("a")
		require.True(t, ok, "access should keep sliding entry alive")
	}
}

func TestStats(t *testing.T) {
	c := New[string, int]("stats", Config{MaxEntries: 2, TTL: time.Minute, EntryBytes: 100})
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts one

	s := c.GetStats()
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, int64(200), s.ApproxMemory)
	assert.Equal(t, int64(1), s.Evictions)
}
