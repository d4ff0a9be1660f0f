package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetLockout reads the lockout state for one gate key.
// A missing row is the Open(0) state.
func (db *DB) GetLockout(ctx context.Context, key string) (*LockoutState, error) {
	s := &LockoutState{Key: key}
	err := db.Pool.QueryRow(ctx,
		`SELECT failure_count, locked_until FROM gate_lockouts WHERE key = $1`,
		key,
	).Scan(&s.FailureCount, &s.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting lockout state: %w", err)
	}
	return s, nil
}

// RecordLockoutFailure applies one failed attempt to a gate key atomically.
// An expired lock resets to Open(0) before the new attempt is counted, and
// reaching maxAttempts failures sets locked_until. Concurrent failures for
// the same key never lose updates: the whole transition is one upsert.
func (db *DB) RecordLockoutFailure(ctx context.Context, key string, maxAttempts int, lockout time.Duration) (*LockoutState, error) {
	s := &LockoutState{Key: key}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO gate_lockouts (key, failure_count, locked_until, updated_at)
		 VALUES ($1, 1, CASE WHEN 1 >= $2 THEN now() + make_interval(secs => $3) END, now())
		 ON CONFLICT (key) DO UPDATE SET
		   failure_count = CASE
		     WHEN gate_lockouts.locked_until IS NOT NULL AND gate_lockouts.locked_until <= now() THEN 1
		     ELSE gate_lockouts.failure_count + 1
		   END,
		   locked_until = CASE
		     WHEN gate_lockouts.locked_until IS NOT NULL AND gate_lockouts.locked_until > now()
		       THEN gate_lockouts.locked_until
		     WHEN (CASE
		             WHEN gate_lockouts.locked_until IS NOT NULL AND gate_lockouts.locked_until <= now() THEN 1
		             ELSE gate_lockouts.failure_count + 1
		           END) >= $2
		       THEN now() + make_interval(secs => $3)
		   END,
		   updated_at = now()
		 RETURNING failure_count, locked_until`,
		key, maxAttempts, lockout.Seconds(),
	).Scan(&s.FailureCount, &s.LockedUntil)
	if err != nil {
		return nil, fmt.Errorf("recording lockout failure: %w", err)
	}
	return s, nil
}

// ResetLockout clears a gate key back to Open(0).
func (db *DB) ResetLockout(ctx context.Context, key string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM gate_lockouts WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("resetting lockout state: %w", err)
	}
	return nil
}
