package db

import (
	"context"
	"encoding/json"
	"fmt"
)

// CreateAuditEvent inserts an audit event.
func (db *DB) CreateAuditEvent(ctx context.Context, actorType, actorID, action, resource, outcome, ip string, metadata json.RawMessage, prevHash, hash string) (*AuditEvent, error) {
	event := &AuditEvent{}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO audit_events (actor_type, actor_id, action, resource, outcome, ip, metadata, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, timestamp, actor_type, actor_id, action, resource, outcome, ip, metadata, prev_hash, hash`,
		actorType, actorID, action, resource, outcome, ip, metadata, prevHash, hash,
	).Scan(&event.ID, &event.Timestamp, &event.ActorType, &event.ActorID, &event.Action,
		&event.Resource, &event.Outcome, &event.IP, &event.Metadata, &event.PrevHash, &event.Hash)
	if err != nil {
		return nil, fmt.Errorf("creating audit event: %w", err)
	}
	return event, nil
}

// ListRecentAuditEvents returns the newest audit events, bounded by limit.
func (db *DB) ListRecentAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, timestamp, actor_type, actor_id, action, resource, outcome, ip, metadata, COALESCE(prev_hash, ''), COALESCE(hash, '')
		 FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorType, &e.ActorID, &e.Action,
			&e.Resource, &e.Outcome, &e.IP, &e.Metadata, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLastAuditHash retrieves the hash of the most recent audit event for chain linking.
func (db *DB) GetLastAuditHash(ctx context.Context) (string, error) {
	var hash *string
	err := db.Pool.QueryRow(ctx,
		`SELECT hash FROM audit_events ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&hash)
	if err != nil {
		// No rows: genesis event
		return "", nil
	}
	if hash == nil {
		return "", nil
	}
	return *hash, nil
}
