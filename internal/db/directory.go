package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetAuthAccount looks up an identity in the auth directory.
func (db *DB) GetAuthAccount(ctx context.Context, uid string) (*AuthAccount, error) {
	a := &AuthAccount{}
	err := db.Pool.QueryRow(ctx,
		`SELECT uid, email, disabled, created_at FROM auth_accounts WHERE uid = $1`,
		uid,
	).Scan(&a.UID, &a.Email, &a.Disabled, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auth account: %w", err)
	}
	return a, nil
}

// CountAuthAccounts counts directory identities over a bounded page.
// The page bound keeps the read cheap; beyond it the count saturates.
func (db *DB) CountAuthAccounts(ctx context.Context, pageLimit int) (int, error) {
	if pageLimit <= 0 {
		pageLimit = 1000
	}
	var count int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM auth_accounts LIMIT $1) page`,
		pageLimit,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting auth accounts: %w", err)
	}
	return count, nil
}

// UpsertAuthAccount records an identity in the auth directory.
func (db *DB) UpsertAuthAccount(ctx context.Context, uid, email string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO auth_accounts (uid, email)
		 VALUES ($1, $2)
		 ON CONFLICT (uid) DO UPDATE SET email = $2`,
		uid, email)
	if err != nil {
		return fmt.Errorf("upserting auth account: %w", err)
	}
	return nil
}
