package requist

import (
	"sync"
	"time"
)

// IdempotentStats is a point-in-time snapshot of the coalescing layer's
// counters. DuplicateRate is derived:
// duplicatesBlocked/totalRequests*100, or 0 when no requests were made.
type IdempotentStats struct {
	TotalRequests         int64
	DuplicatesBlocked     int64
	PendingRequestsReused int64
	CacheHits             int64
	ActualNetworkRequests int64
	DuplicateRate         float64
	AvgResponseTimeMs     float64
	KeyGenerationTimeMs   float64
}

// statsTracker maintains the running counters and means. All methods are safe
// for concurrent use.
type statsTracker struct {
	mu sync.Mutex

	totalRequests         int64
	duplicatesBlocked     int64
	pendingRequestsReused int64
	cacheHits             int64
	actualNetworkRequests int64

	avgResponseMs float64

	keyGenMs      float64
	keyGenSamples int64
}

func newStatsTracker() *statsTracker {
	return &statsTracker{}
}

// recordRequest counts one finished call of any branch and folds its duration
// into the running mean: newAvg = oldAvg + (sample-oldAvg)/n.
func (s *statsTracker) recordRequest(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	sample := float64(duration) / float64(time.Millisecond)
	s.avgResponseMs += (sample - s.avgResponseMs) / float64(s.totalRequests)
}

func (s *statsTracker) recordKeyGeneration(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keyGenSamples++
	sample := float64(duration) / float64(time.Millisecond)
	s.keyGenMs += (sample - s.keyGenMs) / float64(s.keyGenSamples)
}

func (s *statsTracker) recordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheHits++
	s.duplicatesBlocked++
}

func (s *statsTracker) recordPendingReuse() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingRequestsReused++
	s.duplicatesBlocked++
}

func (s *statsTracker) recordNetworkRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actualNetworkRequests++
}

func (s *statsTracker) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests = 0
	s.duplicatesBlocked = 0
	s.pendingRequestsReused = 0
	s.cacheHits = 0
	s.actualNetworkRequests = 0
	s.avgResponseMs = 0
	s.keyGenMs = 0
	s.keyGenSamples = 0
}

func (s *statsTracker) snapshot() IdempotentStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 0.0
	if s.totalRequests > 0 {
		rate = float64(s.duplicatesBlocked) / float64(s.totalRequests) * 100
	}

	return IdempotentStats{
		TotalRequests:         s.totalRequests,
		DuplicatesBlocked:     s.duplicatesBlocked,
		PendingRequestsReused: s.pendingRequestsReused,
		CacheHits:             s.cacheHits,
		ActualNetworkRequests: s.actualNetworkRequests,
		DuplicateRate:         rate,
		AvgResponseTimeMs:     s.avgResponseMs,
		KeyGenerationTimeMs:   s.keyGenMs,
	}
}
