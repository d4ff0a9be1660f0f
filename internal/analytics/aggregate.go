// Package analytics builds dashboard-ready summaries from usage telemetry
// scattered across per-identity history shards, plus a bounded, time-sorted
// activity feed merged from heterogeneous event sources.
package analytics

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kitbox/kitbox/internal/db"
)

// Defaults for the aggregation window and bounds.
const (
	DefaultWindowDays   = 7
	DefaultCapPerSource = 1000
	DefaultTopK         = 8
	DefaultDirectoryCap = 1000
)

// Store is the read surface the aggregator scans. *db.DB satisfies it.
type Store interface {
	CountAuthAccounts(ctx context.Context, pageLimit int) (int, error)
	CountFeedback(ctx context.Context) (int, error)
	ScanRecentHistory(ctx context.Context, since time.Time, cap int) ([]db.HistoryRecord, error)
}

// ToolCount is one entry of the top-tools ranking.
type ToolCount struct {
	Name  string `json:"name"`
	Usage int    `json:"usage"`
}

// DayActivity counts distinct active identities on one calendar day.
type DayActivity struct {
	Name   string `json:"name"`
	Active int    `json:"active"`
}

// GrowthPoint is one period of the user-growth curve. The curve is an
// estimated shape — round(total × (i/7)^1.5) — not reconstructed signup
// history; callers must treat it as an approximation.
type GrowthPoint struct {
	Name  string `json:"name"`
	Users int    `json:"users"`
}

// Snapshot is the aggregated dashboard summary.
type Snapshot struct {
	TotalUsers      int           `json:"totalUsers"`
	TotalFeedback   int           `json:"totalFeedback"`
	TotalExecutions int           `json:"totalExecutions"`
	ActiveTools     int           `json:"activeTools"`
	TopTools        []ToolCount   `json:"topTools"`
	DailyActivity   []DayActivity `json:"dailyActivity"`
	UserGrowth      []GrowthPoint `json:"userGrowth"`
}

// Aggregator scans the store and assembles snapshots.
type Aggregator struct {
	store        Store
	windowDays   int
	capPerSource int
	topK         int
	directoryCap int
	now          func() time.Time
}

// NewAggregator creates an Aggregator with the default bounds.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store:        store,
		windowDays:   DefaultWindowDays,
		capPerSource: DefaultCapPerSource,
		topK:         DefaultTopK,
		directoryCap: DefaultDirectoryCap,
		now:          time.Now,
	}
}

// Aggregate runs the three independent sub-reads concurrently and joins them
// into a snapshot. A failing sub-read degrades to its zero value and is
// logged; it never aborts sibling reads or the overall aggregation.
func (a *Aggregator) Aggregate(ctx context.Context) (*Snapshot, error) {
	now := a.now().UTC()
	since := now.AddDate(0, 0, -a.windowDays)

	var (
		totalUsers    int
		totalFeedback int
		records       []db.HistoryRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.store.CountAuthAccounts(gctx, a.directoryCap)
		if err != nil {
			log.Printf("identity count failed, defaulting to 0: %v", err)
			return nil
		}
		totalUsers = n
		return nil
	})
	g.Go(func() error {
		n, err := a.store.CountFeedback(gctx)
		if err != nil {
			log.Printf("feedback count failed, defaulting to 0: %v", err)
			return nil
		}
		totalFeedback = n
		return nil
	})
	g.Go(func() error {
		recs, err := a.store.ScanRecentHistory(gctx, since, a.capPerSource)
		if err != nil {
			// Typically a missing composite index; the summary still ships
			// with empty usage sections.
			log.Printf("history scan failed, degrading usage sections: %v", err)
			return nil
		}
		records = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		TotalUsers:    totalUsers,
		TotalFeedback: totalFeedback,
	}

	toolCounts := make(map[string]int)
	activeByDay := make(map[string]map[string]bool)
	for _, r := range records {
		tool := r.Tool
		if tool == "" {
			tool = "Unknown"
		}
		toolCounts[tool]++

		owner := OwnerOf(r.Path)
		if owner == "" {
			continue
		}
		day := ToInstant(r.TS).UTC().Format("2006-01-02")
		if activeByDay[day] == nil {
			activeByDay[day] = make(map[string]bool)
		}
		activeByDay[day][owner] = true
	}

	snap.TotalExecutions = len(records)
	snap.ActiveTools = len(toolCounts)
	snap.TopTools = topTools(toolCounts, a.topK)
	snap.DailyActivity = dailyActivity(activeByDay, now)
	snap.UserGrowth = growthCurve(totalUsers, now)
	return snap, nil
}

// topTools ranks tools by usage, descending, ties broken by name.
func topTools(counts map[string]int, k int) []ToolCount {
	ranked := make([]ToolCount, 0, len(counts))
	for name, usage := range counts {
		ranked = append(ranked, ToolCount{Name: name, Usage: usage})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Usage != ranked[j].Usage {
			return ranked[i].Usage > ranked[j].Usage
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// dailyActivity emits exactly the trailing 7 calendar days ending today,
// oldest first, counting distinct active identities per day.
func dailyActivity(activeByDay map[string]map[string]bool, now time.Time) []DayActivity {
	days := make([]DayActivity, 0, DefaultWindowDays)
	for i := DefaultWindowDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		days = append(days, DayActivity{
			Name:   day.Format("Mon"),
			Active: len(activeByDay[day.Format("2006-01-02")]),
		})
	}
	return days
}

// growthCurve produces the illustrative monotonically increasing estimate
// round(total × (i/7)^1.5) over 7 trailing periods.
func growthCurve(totalUsers int, now time.Time) []GrowthPoint {
	points := make([]GrowthPoint, 0, DefaultWindowDays)
	for i := 1; i <= DefaultWindowDays; i++ {
		day := now.AddDate(0, 0, i-DefaultWindowDays)
		points = append(points, GrowthPoint{
			Name:  day.Format("Jan 2"),
			Users: int(math.Round(float64(totalUsers) * math.Pow(float64(i)/7.0, 1.5))),
		})
	}
	return points
}
