package db

import (
	"context"
	"fmt"
	"time"
)

// TakeRateToken increments the fixed-window counter for key atomically,
// starting a fresh window when the current one has elapsed. Callers compare
// the returned count against their limit.
func (db *DB) TakeRateToken(ctx context.Context, key string, window time.Duration) (*RateBucket, error) {
	b := &RateBucket{Key: key}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO rate_buckets (key, window_start, count)
		 VALUES ($1, now(), 1)
		 ON CONFLICT (key) DO UPDATE SET
		   window_start = CASE
		     WHEN now() - rate_buckets.window_start >= make_interval(secs => $2) THEN now()
		     ELSE rate_buckets.window_start
		   END,
		   count = CASE
		     WHEN now() - rate_buckets.window_start >= make_interval(secs => $2) THEN 1
		     ELSE rate_buckets.count + 1
		   END
		 RETURNING window_start, count`,
		key, window.Seconds(),
	).Scan(&b.WindowStart, &b.Count)
	if err != nil {
		return nil, fmt.Errorf("taking rate token: %w", err)
	}
	return b, nil
}
