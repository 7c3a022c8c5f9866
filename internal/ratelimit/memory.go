package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memoryEntry struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// MemoryStore is a per-process token bucket per key. Time comes from the
// injected clock and stale keys are dropped only when Sweep is called.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*memoryEntry
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, entries: map[string]*memoryEntry{}}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	now := s.now()
	every := window / time.Duration(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(rate.Every(every), limit), window: window}
		s.entries[key] = entry
	}
	entry.lastSeen = now

	if entry.limiter.AllowN(now, 1) {
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: int(math.Max(0, math.Floor(entry.limiter.TokensAt(now)))),
		}, nil
	}

	missing := 1 - entry.limiter.TokensAt(now)
	retry := time.Duration(missing * float64(every))
	if retry < time.Second {
		retry = time.Second
	}
	return Decision{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retry}, nil
}

// Sweep forgets keys idle for longer than their window; their buckets
// would be full again anyway.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if now.Sub(entry.lastSeen) > entry.window {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
