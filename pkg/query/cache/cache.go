// Package cache holds analytics results per tenant until the tenant's
// dataset changes or the entry ages out.
package cache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Cache is a size-bounded LRU of query results. Every key belongs to one
// tenant, so a tenant's results can be dropped together after an import.
// A nil Cache, or one with a zero maxAge, stores nothing.
type Cache struct {
	mu      sync.Mutex
	lru     *list.List
	entries map[string]*list.Element
	tenants map[string]map[string]struct{}
	maxSize int
	maxAge  time.Duration
	hits    int64
	misses  int64
	now     func() time.Time
}

type entry struct {
	key     string
	tenant  string
	value   any
	expires time.Time
}

// NewCache creates a cache holding at most maxSize results for maxAge each.
func NewCache(maxSize int, maxAge time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Cache{
		lru:     list.New(),
		entries: make(map[string]*list.Element),
		tenants: make(map[string]map[string]struct{}),
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Key builds the cache key of one query. The company code is the first
// segment; Cache uses it to group entries by tenant.
func Key(companyCode, shape string, params ...any) string {
	var sb strings.Builder
	sb.WriteString(companyCode)
	sb.WriteByte('|')
	sb.WriteString(shape)
	for _, p := range params {
		sb.WriteByte('|')
		fmt.Fprint(&sb, p)
	}
	return sb.String()
}

func tenantOf(key string) string {
	tenant, _, _ := strings.Cut(key, "|")
	return tenant
}

func (c *Cache) Enabled() bool {
	return c != nil && c.maxAge > 0
}

// Get returns a live result and marks it recently used.
func (c *Cache) Get(key string) (any, bool) {
	if !c.Enabled() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expires) {
		c.remove(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Put stores a result, evicting the least recently used one when full.
func (c *Cache) Put(key string, value any) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.maxAge)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expires = value, expires
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.maxSize {
		c.remove(c.lru.Back())
	}

	e := &entry{key: key, tenant: tenantOf(key), value: value, expires: expires}
	c.entries[key] = c.lru.PushFront(e)
	keys := c.tenants[e.tenant]
	if keys == nil {
		keys = make(map[string]struct{})
		c.tenants[e.tenant] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate drops every result of one tenant.
func (c *Cache) Invalidate(companyCode string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tenants[companyCode] {
		c.remove(c.entries[key])
	}
}

// remove unlinks el. The caller holds mu.
func (c *Cache) remove(el *list.Element) {
	e := c.lru.Remove(el).(*entry)
	delete(c.entries, e.key)
	if keys := c.tenants[e.tenant]; keys != nil {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.tenants, e.tenant)
		}
	}
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Entries int     `json:"entries"`
	Tenants int     `json:"tenants"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries: c.lru.Len(),
		Tenants: len(c.tenants),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
