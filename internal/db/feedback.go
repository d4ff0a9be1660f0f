package db

import (
	"context"
	"fmt"
)

// CountFeedback returns the total number of feedback records via a direct
// aggregate count.
func (db *DB) CountFeedback(ctx context.Context) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting feedback: %w", err)
	}
	return count, nil
}

// ListRecentFeedback returns the newest feedback records, bounded by limit.
func (db *DB) ListRecentFeedback(ctx context.Context, limit int) ([]FeedbackRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, owner, tool, message, rating, ts
		 FROM feedback ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var f FeedbackRecord
		if err := rows.Scan(&f.ID, &f.Owner, &f.Tool, &f.Message, &f.Rating, &f.TS); err != nil {
			return nil, fmt.Errorf("scanning feedback record: %w", err)
		}
		records = append(records, f)
	}
	return records, rows.Err()
}

// InsertFeedback stores a feedback record.
func (db *DB) InsertFeedback(ctx context.Context, owner, tool, message string, rating *int) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO feedback (owner, tool, message, rating) VALUES ($1, $2, $3, $4)`,
		owner, tool, message, rating)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}
