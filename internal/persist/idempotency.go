package persist

import (
	"sync"
	"time"
)

// IdempotencySet suppresses duplicate fires of an operation within a TTL.
// Settlements claim "winnerId:loserId" before doing anything; a second fire
// inside the window is a silent no-op. Claims come from detached transaction
// goroutines, hence the mutex.
type IdempotencySet struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	ttl     time.Duration
	now     func() time.Time
}

func NewIdempotencySet(ttl time.Duration) *IdempotencySet {
	return &IdempotencySet{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Claim records the key and reports whether it was free. Expired entries are
// reaped as claims come in, so the map never outgrows the live window.
func (s *IdempotencySet) Claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.entries[key]; ok && exp.After(now) {
		return false
	}
	for k, exp := range s.entries {
		if !exp.After(now) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = now.Add(s.ttl)
	return true
}

func (s *IdempotencySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
