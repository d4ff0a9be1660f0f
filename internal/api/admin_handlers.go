package api

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kitbox/kitbox/internal/analytics"
	"github.com/kitbox/kitbox/internal/audit"
	"github.com/kitbox/kitbox/internal/auth"
	"github.com/kitbox/kitbox/internal/db"
)

// handleSummary returns the aggregated dashboard snapshot.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := s.summary.Aggregate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "aggregation failed")
		return
	}
	s.metrics.RecordAggregation(time.Since(start))
	writeJSON(w, http.StatusOK, snap)
}

type overviewMetrics struct {
	Uptime        string `json:"uptime"`
	Load          int    `json:"load"`
	DBStatus      string `json:"dbStatus"`
	SecurityLevel string `json:"securityLevel"`
}

type overviewConfig struct {
	MaintenanceMode bool            `json:"maintenanceMode"`
	FeatureFlags    map[string]bool `json:"featureFlags"`
	BetaPercent     int             `json:"betaPercent"`
	APIVersion      string          `json:"apiVersion"`
}

type overviewResponse struct {
	Metrics  overviewMetrics       `json:"metrics"`
	Logs     []analytics.FeedEntry `json:"logs"`
	Config   overviewConfig        `json:"config"`
	Admins   []auth.AdminRecord    `json:"admins"`
	AllUsers []db.Profile          `json:"allUsers"`
}

// handleOverview assembles the dashboard overview. Sections are fetched
// concurrently and degrade independently; a failing section ships as its
// zero value rather than failing the whole response.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := overviewResponse{
		Logs:     []analytics.FeedEntry{},
		Admins:   []auth.AdminRecord{},
		AllUsers: []db.Profile{},
	}

	securityLevel := "elevated"
	if getTier(ctx) == auth.TierHead {
		securityLevel = "maximum"
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dbStatus := "ok"
		if err := s.store.Ping(gctx); err != nil {
			dbStatus = "degraded"
		}
		resp.Metrics = overviewMetrics{
			Uptime:        time.Since(s.started).Round(time.Second).String(),
			Load:          runtime.NumGoroutine(),
			DBStatus:      dbStatus,
			SecurityLevel: securityLevel,
		}
		return nil
	})
	g.Go(func() error {
		resp.Logs = s.feed.Merge(gctx)
		return nil
	})
	g.Go(func() error {
		cfg, err := s.store.GetRuntimeConfig(gctx)
		if err != nil {
			log.Printf("runtime config read failed, degrading section: %v", err)
			return nil
		}
		resp.Config = overviewConfig{
			MaintenanceMode: cfg.MaintenanceMode,
			FeatureFlags: map[string]bool{
				"maintenanceBanner": s.features.MaintenanceBanner,
				"signupsEnabled":    s.features.SignupsEnabled,
			},
			BetaPercent: cfg.BetaPercent,
			APIVersion:  cfg.APIVersion,
		}
		return nil
	})
	g.Go(func() error {
		admins, err := s.store.ListAdminProfiles(gctx)
		if err != nil {
			log.Printf("admin listing failed, degrading section: %v", err)
			return nil
		}
		for _, p := range admins {
			resp.Admins = append(resp.Admins, s.trust.RecordFor(gctx, p, s.store))
		}
		return nil
	})
	g.Go(func() error {
		users, err := s.store.SearchProfiles(gctx, "", 100)
		if err != nil {
			log.Printf("user listing failed, degrading section: %v", err)
			return nil
		}
		resp.AllUsers = users
		return nil
	})
	// Sections never return errors; Wait only joins.
	_ = g.Wait()

	writeJSON(w, http.StatusOK, resp)
}

// handleSearchUsers searches profiles by name or email substring.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 20)
	if !ok || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	users, err := s.store.SearchProfiles(r.Context(), r.URL.Query().Get("search"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "searching users failed")
		return
	}
	if users == nil {
		users = []db.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// handleGetConfig returns the persisted runtime configuration document.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetRuntimeConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading runtime config failed")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleUpdateConfig replaces the runtime configuration document. Reached
// only through the head-admin guard.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaintenanceMode bool   `json:"maintenanceMode"`
		BetaPercent     int    `json:"betaPercent"`
		APIVersion      string `json:"apiVersion"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BetaPercent < 0 || req.BetaPercent > 100 {
		writeError(w, http.StatusBadRequest, "betaPercent must be between 0 and 100")
		return
	}

	ctx := r.Context()
	cfg, err := s.store.UpdateRuntimeConfig(ctx, req.MaintenanceMode, req.BetaPercent, req.APIVersion)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "updating runtime config failed")
		return
	}

	if s.audit != nil {
		claims := getClaims(ctx)
		meta, _ := json.Marshal(req)
		if _, err := s.audit.Log(ctx, audit.Event{
			ActorType: string(getTier(ctx)),
			ActorID:   claims.UID,
			Action:    "config.update",
			Resource:  "runtime-config",
			Outcome:   "success",
			IP:        getClientIP(ctx),
			Metadata:  meta,
		}); err != nil {
			log.Printf("audit write failed for config.update: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}
