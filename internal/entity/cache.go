package entity

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Store is the lookup surface the cache decorates.
type Store interface {
	Get(ctx context.Context, code string) (Entity, error)
}

// Cache wraps a Store with an in-memory LRU. It is constructed once per
// process and passed explicitly; Purge invalidates it.
type Cache struct {
	inner   Store
	lru     *lruCache
	lookups *prometheus.CounterVec
}

// NewCache creates a cache decorator holding at most maxEntries entities.
func NewCache(inner Store, maxEntries int) *Cache {
	return &Cache{inner: inner, lru: newLRUCache(maxEntries)}
}

// Instrument counts lookups on v by result label ("hit" or "miss").
func (c *Cache) Instrument(v *prometheus.CounterVec) *Cache {
	c.lookups = v
	return c
}

// Get returns the entity, consulting the inner store on a miss. Errors are not cached.
func (c *Cache) Get(ctx context.Context, code string) (Entity, error) {
	if e, ok := c.lru.get(code); ok {
		c.count("hit")
		return e, nil
	}
	c.count("miss")
	e, err := c.inner.Get(ctx, code)
	if err != nil {
		return e, err
	}
	c.lru.put(code, e)
	return e, nil
}

func (c *Cache) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.lru.purge()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.len()
}

// lruCache is a small thread-safe LRU keyed by entity code.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value Entity
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entity{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.head, c.tail = nil, nil
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	victim := c.tail
	delete(c.entries, victim.key)
	c.remove(victim)
}
