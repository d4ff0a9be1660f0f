// Package ratelimit implements fixed-window request throttling keyed by
// (operation, caller). Buckets for different keys are fully independent.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !now.Before(d.ResetAt) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter is a fixed-window throttle.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type bucket struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter keeps its buckets in process memory. Suitable for a single
// replica; multi-replica deployments use the store-backed limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]bucket
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		now:     time.Now,
		buckets: make(map[string]bucket),
	}
}

// Allow takes one slot from key's current window, starting a fresh window if
// none exists or the current one has elapsed.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now, window)

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= window {
		b = bucket{windowStart: now}
	}
	b.count++
	l.buckets[key] = b

	remaining := limit - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   b.count <= limit,
		Count:     b.count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   b.windowStart.Add(window),
	}, nil
}

func (l *MemoryLimiter) sweep(now time.Time, window time.Duration) {
	for k, b := range l.buckets {
		if now.Sub(b.windowStart) >= window {
			delete(l.buckets, k)
		}
	}
}
