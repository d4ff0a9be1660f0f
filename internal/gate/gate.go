// Package gate guards the secondary password gates with a failure-counting
// lockout state machine. State is held server-side and is authoritative;
// any client-mirrored counter is advisory UX only.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kitbox/kitbox/internal/db"
)

// Lockout constants. Four consecutive failures lock a key for a minute.
const (
	MaxAttempts     = 4
	LockoutDuration = time.Minute
)

// Privilege tiers with independent gates and independent lockout state.
const (
	TierAdmin     = "admin"
	TierHeadAdmin = "head-admin"
)

// ErrUnknownTier means no gate is configured for the requested tier.
var ErrUnknownTier = errors.New("unknown gate tier")

// LockedError rejects an attempt while the key is locked, regardless of
// password correctness.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("gate locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Remaining returns the lockout time left at now.
func (e *LockedError) Remaining(now time.Time) time.Duration {
	if !now.Before(e.Until) {
		return 0
	}
	return e.Until.Sub(now)
}

// WrongPasswordError rejects a failed verification while the key is open.
type WrongPasswordError struct {
	AttemptsLeft int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong gate password, %d attempts left", e.AttemptsLeft)
}

// LockoutStore is the durable per-key lockout state backend. *db.DB
// satisfies it; RecordFailure must apply the whole transition atomically.
type LockoutStore interface {
	GetLockout(ctx context.Context, key string) (*db.LockoutState, error)
	RecordLockoutFailure(ctx context.Context, key string, maxAttempts int, lockout time.Duration) (*db.LockoutState, error)
	ResetLockout(ctx context.Context, key string) error
}

// Gate verifies tier passwords under lockout discipline.
type Gate struct {
	store       LockoutStore
	hashes      map[string]string // tier -> bcrypt hash
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// New creates a Gate from per-tier bcrypt password hashes.
func New(store LockoutStore, hashes map[string]string) *Gate {
	return &Gate{
		store:       store,
		hashes:      hashes,
		maxAttempts: MaxAttempts,
		lockout:     LockoutDuration,
		now:         time.Now,
	}
}

// Key builds the lockout key for a tier and caller address.
func Key(tier, ip string) string {
	return tier + ":" + ip
}

// Verify checks password against the tier's gate. While a key is locked,
// even a correct password is rejected; an expired lock resets to Open(0)
// before the attempt is evaluated. A success below the failure threshold
// resets the counter.
func (g *Gate) Verify(ctx context.Context, tier, ip, password string) error {
	hash, ok := g.hashes[tier]
	if !ok || hash == "" {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	key := Key(tier, ip)
	now := g.now()

	state, err := g.store.GetLockout(ctx, key)
	if err != nil {
		// Fail closed: unknown lockout state must not admit attempts.
		return fmt.Errorf("reading lockout state: %w", err)
	}
	if state.LockedUntil != nil && now.Before(*state.LockedUntil) {
		return &LockedError{Until: *state.LockedUntil}
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		after, err := g.store.RecordLockoutFailure(ctx, key, g.maxAttempts, g.lockout)
		if err != nil {
			return fmt.Errorf("recording failed attempt: %w", err)
		}
		if after.LockedUntil != nil && g.now().Before(*after.LockedUntil) {
			return &LockedError{Until: *after.LockedUntil}
		}
		left := g.maxAttempts - after.FailureCount
		if left < 0 {
			left = 0
		}
		return &WrongPasswordError{AttemptsLeft: left}
	}

	if err := g.store.ResetLockout(ctx, key); err != nil {
		return fmt.Errorf("resetting lockout state: %w", err)
	}
	return nil
}

// Status reports the current lockout state for a tier and caller, for UX
// hints. The server still re-validates on every attempt.
func (g *Gate) Status(ctx context.Context, tier, ip string) (locked bool, retryAfter time.Duration, err error) {
	state, err := g.store.GetLockout(ctx, Key(tier, ip))
	if err != nil {
		return false, 0, fmt.Errorf("reading lockout state: %w", err)
	}
	now := g.now()
	if state.LockedUntil != nil && now.Before(*state.LockedUntil) {
		return true, state.LockedUntil.Sub(now), nil
	}
	return false, 0, nil
}

// HashPassword produces a bcrypt hash for a gate password. Used by the CLI.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
