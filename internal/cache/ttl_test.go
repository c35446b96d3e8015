package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, capacity int, ttl time.Duration) (*TTL[string, int], *ManualClock) {
	t.Helper()
	clock := NewManualClock(epoch)
	c, err := New[string, int]("test", capacity, ttl, WithClock(clock))
	require.NoError(t, err)
	return c, clock
}

func TestTTL_GetWithinTTL(t *testing.T) {
	c, clock := newTestCache(t, 4, time.Minute)

	c.Set("a", 1)
	clock.Advance(59 * time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTL_ExpiredEntryIsMiss(t *testing.T) {
	// Given: an entry stored at t0
	c, clock := newTestCache(t, 4, time.Minute)
	c.Set("a", 1)

	// When: the TTL has elapsed
	clock.Advance(time.Minute)

	// Then: the read is a miss and the entry is gone
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_EvictsOldestInsertion(t *testing.T) {
	// Given: a full cache whose oldest entry was read recently
	c, _ := newTestCache(t, 2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")

	// When: a third entry overflows the cache
	c.Set("c", 3)

	// Then: "a" is evicted despite the read
	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.False(t, okA)
	assert.True(t, okB)
	assert.True(t, okC)
}

func TestTTL_ResetRefreshesTimestamp(t *testing.T) {
	c, clock := newTestCache(t, 2, time.Minute)
	c.Set("a", 1)
	clock.Advance(50 * time.Second)
	c.Set("a", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTL_EvictAndPurge(t *testing.T) {
	c, _ := newTestCache(t, 4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Evict("a"))
	assert.False(t, c.Evict("a"))
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestTTL_Observer(t *testing.T) {
	var hits, misses int
	c, err := New[string, int]("obs", 2, time.Minute, WithObserver(func(name string, hit bool) {
		assert.Equal(t, "obs", name)
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	require.NoError(t, err)

	c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("b")

	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestNew_RejectsInvalidBounds(t *testing.T) {
	_, err := New[string, int]("bad", 0, time.Minute)
	assert.Error(t, err)

	_, err = New[string, int]("bad", 1, 0)
	assert.Error(t, err)
}
