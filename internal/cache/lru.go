package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache with an optional idle TTL. Get and Set
// extend an entry's lifetime; an entry untouched for longer than the TTL is
// expired. A zero TTL keeps entries until they are evicted or deleted.
//
// Pinned entries (see WithPin) are never expired or evicted for capacity, so
// the cache may temporarily hold more than maxSize entries.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict func(key string, data T)
	pinned  func(key string, data T) bool
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// Option configures an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithEvictCallback registers fn to run when an entry is dropped for capacity.
// fn runs with the cache lock held and must not call back into the cache.
func WithEvictCallback[T any](fn func(key string, data T)) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// WithPin registers fn to report entries that must stay in the cache.
// fn runs with the cache lock held and must not call back into the cache.
func WithPin[T any](fn func(key string, data T) bool) Option[T] {
	return func(c *LRUCache[T]) { c.pinned = fn }
}

// WithClock overrides the time source.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value, marks it most recently used and extends its TTL.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if c.expired(item) {
		c.removeElement(elem)
		return zero, false
	}

	c.touch(item)
	c.lru.MoveToFront(elem)
	return item.data, true
}

// Peek retrieves a value without touching recency or TTL.
func (c *LRUCache[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	if c.expired(item) {
		return zero, false
	}
	return item.data, true
}

// Set stores a value in the cache. When the cache is over capacity the least
// recently used unpinned entries other than key are evicted.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{key: key, data: data}
	c.touch(item)

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	for c.lru.Len() > c.maxSize {
		victim := c.victim(elem)
		if victim == nil {
			return
		}
		evicted := victim.Value.(*cacheItem[T])
		c.removeElement(victim)
		if c.onEvict != nil {
			c.onEvict(evicted.key, evicted.data)
		}
	}
}

// victim returns the least recently used entry that may be evicted, skipping keep.
func (c *LRUCache[T]) victim(keep *list.Element) *list.Element {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		if elem == keep || c.isPinned(elem.Value.(*cacheItem[T])) {
			continue
		}
		return elem
	}
	return nil
}

// DeleteFunc removes every entry for which match returns true and reports how many were removed.
func (c *LRUCache[T]) DeleteFunc(match func(key string, data T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if match(item.key, item.data) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// Range calls fn for each live entry from most to least recently used until fn returns false.
// fn runs with the cache lock held.
func (c *LRUCache[T]) Range(fn func(key string, data T) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if c.expired(item) {
			continue
		}
		if !fn(item.key, item.data) {
			return
		}
	}
}

func (c *LRUCache[T]) touch(item *cacheItem[T]) {
	if c.ttl > 0 {
		item.expiresAt = c.now().Add(c.ttl)
	}
}

func (c *LRUCache[T]) isPinned(item *cacheItem[T]) bool {
	return c.pinned != nil && c.pinned(item.key, item.data)
}

func (c *LRUCache[T]) expired(item *cacheItem[T]) bool {
	if item.expiresAt.IsZero() || !c.now().After(item.expiresAt) {
		return false
	}
	return !c.isPinned(item)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if c.expired(elem.Value.(*cacheItem[T])) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}

	return len(toRemove)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
