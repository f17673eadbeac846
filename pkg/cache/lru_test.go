package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/cache"
)

func TestTTLCache_Basic(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](3, time.Minute)

		c.Put("a", 1)
		c.Put("b", 2)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, val)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("get non-existent", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](3, time.Minute)

		val, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Equal(t, 0, val)
	})

	t.Run("update existing", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](3, time.Minute)

		c.Put("a", 1)
		c.Put("a", 2)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, val)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("remove and clear", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](3, time.Minute)

		c.Put("a", 1)
		c.Put("b", 2)
		assert.True(t, c.Remove("a"))
		assert.False(t, c.Remove("a"))

		c.Clear()
		assert.Equal(t, 0, c.Len())
	})

	t.Run("zero capacity panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.New[string, int](0, time.Minute) })
	})
}

func TestTTLCache_Eviction(t *testing.T) {
	t.Parallel()

	c := cache.New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // b is now least recently used
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	c := cache.New[string, int](10, 5*time.Second, cache.WithClock(clock))

	c.Put("a", 1)
	clock.Advance(4 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	c.Put("a", 2)
	clock.Advance(3 * time.Second)
	c.Put("a", 3) // refreshes TTL
	clock.Advance(3 * time.Second)
	val, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, val)
}

func TestTTLCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.New[int, int](50, time.Minute)
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Put(i%60, i)
			c.Get(i % 30)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
