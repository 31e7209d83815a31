package cache

import "sync"

// EvictFunc receives values removed from the cache by capacity pressure
// or Purge.
type EvictFunc[K comparable, V any] func(key K, value V)

// LRU is a thread-safe least-recently-used cache with a hard capacity.
//
// LRU must not be copied after creation.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*node[K, V]
	order    recencyList[K, V]
	capacity int
	onEvict  EvictFunc[K, V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most capacity entries. A capacity of 0
// means unbounded. onEvict may be nil.
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) *LRU[K, V] {
	return &LRU[K, V]{
		entries:  make(map[K]*node[K, V]),
		capacity: capacity,
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(n)
	return n.value, true
}

// Add stores value under key, replacing (and evicting) any previous value.
func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	evicted := c.addLocked(key, value)
	c.mu.Unlock()
	c.notify(evicted)
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. create runs under the cache lock so concurrent callers never
// create the same key twice. Errors from create are returned and nothing is
// cached.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	if n, ok := c.entries[key]; ok {
		c.hits++
		c.order.moveToFront(n)
		c.mu.Unlock()
		return n.value, nil
	}
	c.misses++
	value, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero V
		return zero, err
	}
	evicted := c.addLocked(key, value)
	c.mu.Unlock()
	c.notify(evicted)
	return value, nil
}

// Remove deletes key without invoking the eviction callback and returns the
// removed value.
func (c *LRU[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.unlink(n)
	delete(c.entries, key)
	return n.value, true
}

// Purge evicts every entry, oldest first.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	var evicted []*node[K, V]
	for n := c.order.removeOldest(); n != nil; n = c.order.removeOldest() {
		delete(c.entries, n.key)
		evicted = append(evicted, n)
	}
	c.mu.Unlock()
	c.notify(evicted)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// addLocked inserts the entry and returns the nodes pushed out by it.
// Caller must hold c.mu.
func (c *LRU[K, V]) addLocked(key K, value V) []*node[K, V] {
	var evicted []*node[K, V]
	if old, ok := c.entries[key]; ok {
		c.order.unlink(old)
		delete(c.entries, key)
		evicted = append(evicted, old)
	}
	c.entries[key] = c.order.pushFront(key, value)
	for c.capacity > 0 && c.order.len > c.capacity {
		n := c.order.removeOldest()
		delete(c.entries, n.key)
		evicted = append(evicted, n)
	}
	c.evictions += uint64(len(evicted))
	return evicted
}

// notify runs the eviction callback outside the lock.
func (c *LRU[K, V]) notify(evicted []*node[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, n := range evicted {
		c.onEvict(n.key, n.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries, 0 if unbounded.
	Capacity int
	// Hits is the number of lookups that found an entry.
	Hits uint64
	// Misses is the number of lookups that did not.
	Misses uint64
	// Evictions is the number of entries pushed out by Add or Purge.
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
