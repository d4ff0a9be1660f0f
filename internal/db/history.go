package db

import (
	"context"
	"fmt"
	"time"
)

// InsertHistory records one tool execution in the owner's history shard.
func (db *DB) InsertHistory(ctx context.Context, owner, tool string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO tool_history (owner, tool) VALUES ($1, NULLIF($2, ''))`,
		owner, tool)
	if err != nil {
		return fmt.Errorf("inserting history record: %w", err)
	}
	return nil
}

// ScanRecentHistory reads history records across all identities at once
// (the collection-group scan), newest first, bounded by cap. Each record
// carries its document path; ownership is projected from the path by callers.
func (db *DB) ScanRecentHistory(ctx context.Context, since time.Time, cap int) ([]HistoryRecord, error) {
	if cap <= 0 {
		cap = 1000
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT 'users/' || owner || '/history/' || id::text, COALESCE(tool, ''), ts
		 FROM tool_history
		 WHERE ts >= $1
		 ORDER BY ts DESC
		 LIMIT $2`, since, cap)
	if err != nil {
		return nil, fmt.Errorf("scanning tool history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.Path, &r.Tool, &r.TS); err != nil {
			return nil, fmt.Errorf("scanning history record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
