package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const profileColumns = `uid, email, name, is_admin, protected, disabled, banned, created_at, last_login_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(&p.UID, &p.Email, &p.Name, &p.IsAdmin, &p.Protected,
		&p.Disabled, &p.Banned, &p.CreatedAt, &p.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning profile: %w", err)
	}
	return p, nil
}

// GetProfile retrieves a profile document by identity uid.
func (db *DB) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	return scanProfile(db.Pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE uid = $1`, uid))
}

// GetProfileByEmail retrieves a profile document by email.
func (db *DB) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return scanProfile(db.Pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1)`, email))
}

// UpsertProfile creates or refreshes a profile document.
func (db *DB) UpsertProfile(ctx context.Context, uid, email, name string) (*Profile, error) {
	return scanProfile(db.Pool.QueryRow(ctx,
		`INSERT INTO profiles (uid, email, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (uid) DO UPDATE SET email = $2, name = $3
		 RETURNING `+profileColumns, uid, email, name))
}

// SetProfileAdmin grants or revokes persisted admin on a profile.
// Protected profiles (bootstrap allowlist identities) cannot be demoted by a
// data mutation alone; such an update is a no-op reported as ErrNotFound.
func (db *DB) SetProfileAdmin(ctx context.Context, uid string, isAdmin bool) (*Profile, error) {
	return scanProfile(db.Pool.QueryRow(ctx,
		`UPDATE profiles SET is_admin = $2
		 WHERE uid = $1 AND (NOT protected OR $2)
		 RETURNING `+profileColumns, uid, isAdmin))
}

// MarkProfileProtected flags a profile as originating from the bootstrap allowlist.
func (db *DB) MarkProfileProtected(ctx context.Context, uid string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE profiles SET protected = true, is_admin = true WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("marking profile protected: %w", err)
	}
	return nil
}

// ListAdminProfiles returns all profiles with persisted admin privilege.
func (db *DB) ListAdminProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE is_admin ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("listing admin profiles: %w", err)
	}
	defer rows.Close()

	var admins []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, *p)
	}
	return admins, rows.Err()
}

// SearchProfiles returns up to limit profiles whose name or email contains
// the search string, case-insensitively. Banned profiles are excluded.
func (db *DB) SearchProfiles(ctx context.Context, search string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE NOT banned AND (name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		 ORDER BY created_at DESC
		 LIMIT $2`, search, limit)
	if err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}
