package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a process-scoped TTL map with expiry-on-read semantics. Expired
// entries are evicted by the Get that observes them; there is no background
// sweep, so Stats may count expired entries until the next access.
//
// The cache is TTL-agnostic: every Put carries its own duration. Callers own
// the policy of what a reasonable TTL is.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// New returns an empty cache. The cache starts cold on every process start;
// a miss after restart is expected, not an error.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Put stores value under key, expiring ttl after insertion. A second Put on
// the same key replaces the entry and its deadline.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Get returns the value stored under key if the current time is strictly
// before its expiry. An expired entry is evicted before reporting a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Clear removes all entries. Administrative and test use only; never called
// on the request path.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Stats reports entry counts at the moment of the call. Expired entries that
// no Get has touched yet are counted separately from active ones.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			s.Active++
		} else {
			s.Expired++
		}
	}
	return s
}
