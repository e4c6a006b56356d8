package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

// Cache is a bounded, thread-safe in-memory cache for bar series with
// least-recently-used eviction and a per-entry time-to-live. A lookup
// hash map and an access-order list keep every operation O(1); expired
// entries are dropped lazily on access rather than by a background sweep.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List               // front is most recently used
	items    map[string]*list.Element // key -> element whose Value is *entry
	hits     int64
	misses   int64
	now      func() time.Time // swapped out in tests
}

type entry struct {
	key      string
	bars     []*domain.Bar
	storedAt time.Time
}

// New creates a cache holding at most capacity entries, each valid for ttl
// after being set. Both must be positive.
func New(capacity int, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %v", ttl)
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}, nil
}

// Get returns the bars stored under key and marks the entry as most
// recently used. An entry past its TTL is removed and reported as a miss.
// Callers must not mutate the returned slice.
func (c *Cache) Get(key string) ([]*domain.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.now().Sub(ent.storedAt) > c.ttl {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return ent.bars, true
}

// Set stores bars under key, overwriting any existing entry and resetting
// its TTL. When the cache is full the least recently used entry is evicted.
func (c *Cache) Set(key string, bars []*domain.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.bars = bars
		ent.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	elem := c.order.PushFront(&entry{key: key, bars: bars, storedAt: c.now()})
	c.items[key] = elem
}

// Remove deletes the entry under key, reporting whether it existed.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// RemoveMatching deletes every entry whose key satisfies match and returns
// the number removed.
func (c *Cache) RemoveMatching(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if match(key) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Clear empties the cache. Hit and miss counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of entries currently held, including any whose
// TTL has lapsed but which have not been touched since.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the cached keys in no particular order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns the cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Healthy reports whether the cache is usable. It exists so health checks
// treat the cache uniformly with external dependencies.
func (c *Cache) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items != nil && c.order.Len() <= c.capacity
}

// removeElement drops elem from both the order list and the lookup map.
// Callers must hold c.mu.
func (c *Cache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
