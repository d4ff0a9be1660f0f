package ratelimit

import (
	"context"
	"time"

	"github.com/kitbox/kitbox/internal/db"
)

// BucketStore is the durable bucket backend. *db.DB satisfies it; the update
// for a given key is a single atomic upsert, so concurrent attempts from the
// same key never lose counts.
type BucketStore interface {
	TakeRateToken(ctx context.Context, key string, window time.Duration) (*db.RateBucket, error)
}

// StoreLimiter is a fixed-window limiter whose buckets are shared across
// replicas through the store.
type StoreLimiter struct {
	store BucketStore
}

// NewStoreLimiter creates a limiter backed by the given store.
func NewStoreLimiter(store BucketStore) *StoreLimiter {
	return &StoreLimiter{store: store}
}

// Allow takes one slot from key's current window.
func (l *StoreLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	b, err := l.store.TakeRateToken(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}

	remaining := limit - b.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   b.Count <= limit,
		Count:     b.Count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   b.WindowStart.Add(window),
	}, nil
}
