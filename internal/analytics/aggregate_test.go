package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kitbox/kitbox/internal/db"
)

type fakeStore struct {
	users       int
	usersErr    error
	feedback    int
	feedbackErr error
	records     []db.HistoryRecord
	recordsErr  error
}

func (f *fakeStore) CountAuthAccounts(ctx context.Context, pageLimit int) (int, error) {
	return f.users, f.usersErr
}

func (f *fakeStore) CountFeedback(ctx context.Context) (int, error) {
	return f.feedback, f.feedbackErr
}

func (f *fakeStore) ScanRecentHistory(ctx context.Context, since time.Time, cap int) ([]db.HistoryRecord, error) {
	return f.records, f.recordsErr
}

func historyRecord(owner, tool string, ts time.Time) db.HistoryRecord {
	return db.HistoryRecord{
		Path: fmt.Sprintf("users/%s/history/%d", owner, ts.UnixNano()),
		Tool: tool,
		TS:   ts,
	}
}

func testAggregator(store Store, now time.Time) *Aggregator {
	a := NewAggregator(store)
	a.now = func() time.Time { return now }
	return a
}

func TestAggregateCountsAndRanking(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{users: 140, feedback: 12}
	for i := 0; i < 5; i++ {
		store.records = append(store.records, historyRecord("alice", "formatter", now.Add(-time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 3; i++ {
		store.records = append(store.records, historyRecord("bob", "diff", now.Add(-time.Duration(i)*time.Hour)))
	}
	store.records = append(store.records, historyRecord("carol", "", now.Add(-time.Hour)))

	snap, err := testAggregator(store, now).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.TotalUsers != 140 || snap.TotalFeedback != 12 {
		t.Errorf("totals = %d users / %d feedback, want 140 / 12", snap.TotalUsers, snap.TotalFeedback)
	}
	if snap.TotalExecutions != 9 {
		t.Errorf("TotalExecutions = %d, want 9", snap.TotalExecutions)
	}
	if snap.ActiveTools != 3 {
		t.Errorf("ActiveTools = %d, want 3", snap.ActiveTools)
	}
	want := []ToolCount{{"formatter", 5}, {"diff", 3}, {"Unknown", 1}}
	if len(snap.TopTools) != len(want) {
		t.Fatalf("TopTools = %v, want %v", snap.TopTools, want)
	}
	for i, w := range want {
		if snap.TopTools[i] != w {
			t.Errorf("TopTools[%d] = %v, want %v", i, snap.TopTools[i], w)
		}
	}
}

func TestAggregateTopToolsBounded(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	for i := 0; i < 12; i++ {
		tool := fmt.Sprintf("tool-%02d", i)
		for j := 0; j <= i; j++ {
			store.records = append(store.records, historyRecord("alice", tool, now.Add(-time.Minute)))
		}
	}

	snap, err := testAggregator(store, now).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(snap.TopTools) != DefaultTopK {
		t.Fatalf("len(TopTools) = %d, want %d", len(snap.TopTools), DefaultTopK)
	}
	for i := 1; i < len(snap.TopTools); i++ {
		if snap.TopTools[i].Usage > snap.TopTools[i-1].Usage {
			t.Errorf("TopTools not sorted non-increasing at %d: %v", i, snap.TopTools)
		}
	}
	if snap.TopTools[0].Name != "tool-11" || snap.TopTools[0].Usage != 12 {
		t.Errorf("TopTools[0] = %v, want tool-11 with 12 uses", snap.TopTools[0])
	}
}

func TestAggregateDailyActivity(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{
		records: []db.HistoryRecord{
			historyRecord("alice", "diff", now.Add(-time.Hour)),
			historyRecord("bob", "diff", now.Add(-2*time.Hour)),
			historyRecord("alice", "diff", now.Add(-3*time.Hour)),
			historyRecord("alice", "diff", now.AddDate(0, 0, -2)),
			{Path: "orphans/x/history/1", Tool: "diff", TS: now.Add(-time.Hour)},
		},
	}

	snap, err := testAggregator(store, now).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(snap.DailyActivity) != DefaultWindowDays {
		t.Fatalf("len(DailyActivity) = %d, want %d", len(snap.DailyActivity), DefaultWindowDays)
	}
	last := snap.DailyActivity[len(snap.DailyActivity)-1]
	if last.Name != "Wed" || last.Active != 2 {
		t.Errorf("today = %+v, want Wed with 2 distinct identities", last)
	}
	twoDaysAgo := snap.DailyActivity[len(snap.DailyActivity)-3]
	if twoDaysAgo.Active != 1 {
		t.Errorf("two days ago = %+v, want 1 active", twoDaysAgo)
	}
}

func TestAggregateGrowthCurveMonotonic(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	snap, err := testAggregator(&fakeStore{users: 200}, now).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(snap.UserGrowth) != DefaultWindowDays {
		t.Fatalf("len(UserGrowth) = %d, want %d", len(snap.UserGrowth), DefaultWindowDays)
	}
	for i := 1; i < len(snap.UserGrowth); i++ {
		if snap.UserGrowth[i].Users < snap.UserGrowth[i-1].Users {
			t.Errorf("UserGrowth not monotonic at %d: %v", i, snap.UserGrowth)
		}
	}
	if got := snap.UserGrowth[len(snap.UserGrowth)-1].Users; got != 200 {
		t.Errorf("final growth point = %d, want total 200", got)
	}
}

func TestAggregateDegradesPerSource(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{
		users:      50,
		feedback:   7,
		recordsErr: errors.New("missing composite index"),
	}

	snap, err := testAggregator(store, now).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.TotalUsers != 50 || snap.TotalFeedback != 7 {
		t.Errorf("healthy sources degraded too: %+v", snap)
	}
	if snap.TotalExecutions != 0 || snap.ActiveTools != 0 || len(snap.TopTools) != 0 {
		t.Errorf("usage sections not degraded to empty: %+v", snap)
	}
	if len(snap.DailyActivity) != DefaultWindowDays {
		t.Errorf("len(DailyActivity) = %d, want %d even on scan failure", len(snap.DailyActivity), DefaultWindowDays)
	}
	for _, d := range snap.DailyActivity {
		if d.Active != 0 {
			t.Errorf("expected zero activity, got %+v", d)
		}
	}
}

func TestAggregateAllSourcesFailing(t *testing.T) {
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{
		usersErr:    errors.New("directory unavailable"),
		feedbackErr: errors.New("feedback unavailable"),
		recordsErr:  errors.New("history unavailable"),
	}

	snap, err := testAggregator(store, now).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.TotalUsers != 0 || snap.TotalFeedback != 0 || snap.TotalExecutions != 0 {
		t.Errorf("expected zero totals, got %+v", snap)
	}
	if len(snap.DailyActivity) != DefaultWindowDays || len(snap.UserGrowth) != DefaultWindowDays {
		t.Errorf("fixed-length sections missing: %+v", snap)
	}
}
