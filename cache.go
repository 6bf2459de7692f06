package requist

import (
	"sync"
	"time"
)

// CacheItem is one TTL-bound cache entry. Items are owned by the cache that
// created them; callers must not mutate them.
type CacheItem struct {
	Key         string
	Data        any
	Timestamp   time.Time
	TTL         time.Duration
	AccessTime  time.Time
	AccessCount int64
}

// IsValid reports whether the item is still within its TTL window at the
// given instant. It is a pure function of the item and now.
func (item *CacheItem) IsValid(now time.Time) bool {
	if item == nil {
		return false
	}
	return now.Sub(item.Timestamp) < item.TTL
}

// Cache is a TTL-aware key/value store. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the item for key if present and unexpired. Expired items
	// are removed on read and reported as a miss.
	Get(key string) (*CacheItem, bool)
	// Set stores data under key with the given ttl, evicting per policy when
	// inserting a new key over capacity.
	Set(key string, data any, ttl time.Duration)
	// Remove deletes one entry.
	Remove(key string)
	// Clear deletes all entries.
	Clear()
	// Len returns the current number of entries, expired ones included.
	Len() int
}

// MemoryCache is the default in-process Cache. Expired entries self-heal on
// read; there is no background sweep. Eviction runs synchronously when an
// insert would exceed capacity.
type MemoryCache struct {
	mu       sync.Mutex
	items    map[string]*CacheItem
	capacity int
	policy   EvictionPolicy
	now      func() time.Time
}

// NewMemoryCache creates a MemoryCache. capacity <= 0 means unbounded; a nil
// policy defaults to LRU.
func NewMemoryCache(capacity int, policy EvictionPolicy) *MemoryCache {
	if policy == nil {
		policy = LRUPolicy{}
	}
	return &MemoryCache{
		items:    make(map[string]*CacheItem),
		capacity: capacity,
		policy:   policy,
		now:      time.Now,
	}
}

// Get retrieves a valid item and records the access.
func (c *MemoryCache) Get(key string) (*CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}

	now := c.now()
	if !item.IsValid(now) {
		delete(c.items, key)
		return nil, false
	}

	item.AccessTime = now
	item.AccessCount++
	return item, true
}

// Set stores data under key. Replacing an existing key never triggers
// eviction; inserting a new key evicts victims until the store fits.
func (c *MemoryCache) Set(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && c.capacity > 0 {
		for len(c.items) >= c.capacity {
			victim := c.policy.Victim(c.items)
			if victim == "" {
				break
			}
			delete(c.items, victim)
		}
	}

	c.items[key] = &CacheItem{
		Key:        key,
		Data:       data,
		Timestamp:  now,
		TTL:        ttl,
		AccessTime: now,
	}
}

// Remove deletes one entry.
func (c *MemoryCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear deletes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem)
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}
