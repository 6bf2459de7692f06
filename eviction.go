package requist

// EvictionPolicy chooses a victim key when an insert would exceed the cache
// capacity. Victim receives the full item map and returns the key to drop, or
// "" when no victim can be chosen.
type EvictionPolicy interface {
	Victim(items map[string]*CacheItem) string
}

// LRUPolicy evicts the least recently accessed item (oldest AccessTime).
type LRUPolicy struct{}

func (LRUPolicy) Victim(items map[string]*CacheItem) string {
	return victimBy(items, func(candidate, current *CacheItem) bool {
		return candidate.AccessTime.Before(current.AccessTime)
	})
}

// FIFOPolicy evicts the earliest inserted item (oldest Timestamp), ignoring
// access pattern.
type FIFOPolicy struct{}

func (FIFOPolicy) Victim(items map[string]*CacheItem) string {
	return victimBy(items, func(candidate, current *CacheItem) bool {
		return candidate.Timestamp.Before(current.Timestamp)
	})
}

// TimeBasedPolicy evicts the item closest to expiry (smallest Timestamp+TTL).
type TimeBasedPolicy struct{}

func (TimeBasedPolicy) Victim(items map[string]*CacheItem) string {
	return victimBy(items, func(candidate, current *CacheItem) bool {
		return candidate.Timestamp.Add(candidate.TTL).Before(current.Timestamp.Add(current.TTL))
	})
}

// CustomPolicy evicts by a caller-supplied comparator. Less reports whether a
// is a better victim than b.
type CustomPolicy struct {
	Less func(a, b *CacheItem) bool
}

func (p CustomPolicy) Victim(items map[string]*CacheItem) string {
	if p.Less == nil {
		return FIFOPolicy{}.Victim(items)
	}
	return victimBy(items, p.Less)
}

func victimBy(items map[string]*CacheItem, less func(candidate, current *CacheItem) bool) string {
	var victim *CacheItem
	for _, item := range items {
		if victim == nil || less(item, victim) {
			victim = item
		}
	}
	if victim == nil {
		return ""
	}
	return victim.Key
}
