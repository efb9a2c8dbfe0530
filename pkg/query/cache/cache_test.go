package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "heritage|top_vendors|20|1|total_spent", Key("heritage", "top_vendors", 20, 1, "total_spent"))
	assert.Equal(t, "heritage|summary", Key("heritage", "summary"))
}

func TestDisabled(t *testing.T) {
	c := NewCache(10, 0)
	c.Put("a|x", 1)
	_, ok := c.Get("a|x")
	assert.False(t, ok)

	var nilCache *Cache
	nilCache.Put("a|x", 1)
	nilCache.Invalidate("a")
	assert.Equal(t, Stats{}, nilCache.Stats())
	_, ok = nilCache.Get("a|x")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := NewCache(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("a|x", 1)
	v, ok := c.Get("a|x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a|x")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 0, s.Entries)
}

func TestInvalidate(t *testing.T) {
	c := NewCache(10, time.Minute)
	c.Put(Key("acme", "summary"), 1)
	c.Put(Key("acme", "top_vendors", 20), 2)
	c.Put(Key("acme-west", "summary"), 3)

	c.Invalidate("acme")
	assert.Equal(t, 1, c.Stats().Tenants)

	_, ok := c.Get(Key("acme", "summary"))
	assert.False(t, ok)
	_, ok = c.Get(Key("acme", "top_vendors", 20))
	assert.False(t, ok)
	v, ok := c.Get(Key("acme-west", "summary"))
	assert.True(t, ok, "a tenant whose code shares a prefix is untouched")
	assert.Equal(t, 3, v)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Minute)

	c.Put("a|1", 1)
	c.Put("a|2", 2)
	_, ok := c.Get("a|1")
	assert.True(t, ok)
	c.Put("b|3", 3)

	_, ok = c.Get("a|2")
	assert.False(t, ok, "a|2 was least recently used")
	_, ok = c.Get("a|1")
	assert.True(t, ok)
	_, ok = c.Get("b|3")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestPutReplaces(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Put("a|1", 1)
	c.Put("a|1", 2)

	v, ok := c.Get("a|1")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Stats().Entries)
}
