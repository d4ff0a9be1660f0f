package analytics

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kitbox/kitbox/internal/db"
)

// DefaultFeedCap bounds the merged activity feed.
const DefaultFeedCap = 30

// ActionSessionInitialized is the synthetic placeholder action emitted when
// every source is empty, so the feed is never presented as literally empty.
const ActionSessionInitialized = "SESSION_INITIALIZED"

// Feed source types tagged on ingestion.
const (
	SourceSecurity = "security"
	SourceUsage    = "usage"
	SourceFeedback = "feedback"
	SourceSystem   = "system"
)

// FeedEntry is one row of the merged activity feed. Entries are built
// per-request from transient reads and never persisted.
type FeedEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	ActorLabel string    `json:"actorLabel"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	SourceType string    `json:"sourceType"`
}

// FeedStore is the read surface the merger pulls from. *db.DB satisfies it.
type FeedStore interface {
	ListRecentAuditEvents(ctx context.Context, limit int) ([]db.AuditEvent, error)
	ScanRecentHistory(ctx context.Context, since time.Time, cap int) ([]db.HistoryRecord, error)
	ListRecentFeedback(ctx context.Context, limit int) ([]db.FeedbackRecord, error)
}

// Merger merges security, usage, and feedback events into one bounded feed.
type Merger struct {
	store FeedStore
	cap   int
	now   func() time.Time
}

// NewMerger creates a Merger with the default cap.
func NewMerger(store FeedStore) *Merger {
	return &Merger{store: store, cap: DefaultFeedCap, now: time.Now}
}

// Merge pulls the three sources concurrently, each independently bounded and
// each degrading to empty on failure, then returns the newest entries up to
// the cap, sorted descending by timestamp.
func (m *Merger) Merge(ctx context.Context) []FeedEntry {
	now := m.now().UTC()
	var security, usage, feedback []FeedEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := m.store.ListRecentAuditEvents(gctx, m.cap)
		if err != nil {
			log.Printf("security feed source failed, degrading to empty: %v", err)
			return nil
		}
		for _, e := range events {
			security = append(security, FeedEntry{
				ID:         e.ID,
				Timestamp:  ToInstant(e.Timestamp),
				Action:     e.Action,
				ActorLabel: e.ActorType + ":" + e.ActorID,
				Target:     e.Resource,
				Status:     e.Outcome,
				SourceType: SourceSecurity,
			})
		}
		return nil
	})
	g.Go(func() error {
		records, err := m.store.ScanRecentHistory(gctx, now.AddDate(0, 0, -DefaultWindowDays), m.cap)
		if err != nil {
			log.Printf("usage feed source failed, degrading to empty: %v", err)
			return nil
		}
		for _, r := range records {
			tool := r.Tool
			if tool == "" {
				tool = "Unknown"
			}
			usage = append(usage, FeedEntry{
				ID:         r.Path,
				Timestamp:  ToInstant(r.TS),
				Action:     "TOOL_EXECUTED",
				ActorLabel: OwnerOf(r.Path),
				Target:     tool,
				Status:     "success",
				SourceType: SourceUsage,
			})
		}
		return nil
	})
	g.Go(func() error {
		records, err := m.store.ListRecentFeedback(gctx, m.cap)
		if err != nil {
			log.Printf("feedback feed source failed, degrading to empty: %v", err)
			return nil
		}
		for _, f := range records {
			feedback = append(feedback, FeedEntry{
				ID:         f.ID,
				Timestamp:  ToInstant(f.TS),
				Action:     "FEEDBACK_SUBMITTED",
				ActorLabel: f.Owner,
				Target:     f.Tool,
				Status:     "info",
				SourceType: SourceFeedback,
			})
		}
		return nil
	})
	// Sources never return errors; Wait only joins.
	_ = g.Wait()

	merged := make([]FeedEntry, 0, len(security)+len(usage)+len(feedback))
	merged = append(merged, security...)
	merged = append(merged, usage...)
	merged = append(merged, feedback...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > m.cap {
		merged = merged[:m.cap]
	}

	if len(merged) == 0 {
		merged = append(merged, FeedEntry{
			ID:         uuid.NewString(),
			Timestamp:  now,
			Action:     ActionSessionInitialized,
			ActorLabel: "system",
			Status:     "info",
			SourceType: SourceSystem,
		})
	}
	return merged
}
