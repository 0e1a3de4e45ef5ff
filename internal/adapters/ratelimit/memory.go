package ratelimit

import (
	"context"
	"sync"
	"time"

	"roomsync/internal/adapters/observability"
)

// MemoryLimiter is the process-local sliding-window guard: per key it keeps
// the timestamps of recent attempts and prunes anything older than the
// window on every call. Best effort only across processes; multi-instance
// deployments use the redis-backed limiter instead.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time

	window time.Duration
	max    int
	now    func() time.Time
}

func NewMemory(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

// Allow records the attempt and reports whether it fits in the window.
// Append-and-prune happens under one lock so concurrent requests for the
// same key cannot both sneak under the threshold.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		l.attempts[key] = kept
		observability.ObserveRateLimit("denied")
		return false, nil
	}

	l.attempts[key] = append(kept, now)
	observability.ObserveRateLimit("allowed")
	return true, nil
}
