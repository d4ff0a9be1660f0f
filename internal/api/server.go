// Package api exposes the privileged administrative HTTP surface: the
// aggregated dashboard endpoints, the secondary password gates, and the
// runtime configuration document.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kitbox/kitbox/internal/analytics"
	"github.com/kitbox/kitbox/internal/audit"
	"github.com/kitbox/kitbox/internal/auth"
	"github.com/kitbox/kitbox/internal/config"
	"github.com/kitbox/kitbox/internal/db"
	"github.com/kitbox/kitbox/internal/metrics"
	"github.com/kitbox/kitbox/internal/ratelimit"
)

// Store is the persistence surface the handlers read and write. *db.DB
// satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetProfile(ctx context.Context, uid string) (*db.Profile, error)
	GetAuthAccount(ctx context.Context, uid string) (*db.AuthAccount, error)
	SearchProfiles(ctx context.Context, search string, limit int) ([]db.Profile, error)
	ListAdminProfiles(ctx context.Context) ([]db.Profile, error)
	GetRuntimeConfig(ctx context.Context) (*db.RuntimeConfig, error)
	UpdateRuntimeConfig(ctx context.Context, maintenanceMode bool, betaPercent int, apiVersion string) (*db.RuntimeConfig, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// GateKeeper verifies secondary gate passwords under lockout discipline.
type GateKeeper interface {
	Verify(ctx context.Context, tier, ip, password string) error
	Status(ctx context.Context, tier, ip string) (locked bool, retryAfter time.Duration, err error)
}

// Summarizer produces the aggregated dashboard snapshot.
type Summarizer interface {
	Aggregate(ctx context.Context) (*analytics.Snapshot, error)
}

// FeedMerger produces the merged activity feed.
type FeedMerger interface {
	Merge(ctx context.Context) []analytics.FeedEntry
}

// AuditSink records privileged actions.
type AuditSink interface {
	Log(ctx context.Context, event audit.Event) (*db.AuditEvent, error)
}

// Deps carries the server's injected dependencies.
type Deps struct {
	Store    Store
	Verifier TokenVerifier
	Trust    *auth.Evaluator
	Gate     GateKeeper
	Limiter  ratelimit.Limiter
	Summary  Summarizer
	Feed     FeedMerger
	Audit    AuditSink
	Metrics  metrics.Recorder
	Features *config.Features
	Scrape   http.Handler // Prometheus scrape handler; nil disables /metrics

	RatePerMin int // general per-IP throttle; 0 uses the default
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	store    Store
	verifier TokenVerifier
	trust    *auth.Evaluator
	gate     GateKeeper
	limiter  ratelimit.Limiter
	summary  Summarizer
	feed     FeedMerger
	audit    AuditSink
	metrics  metrics.Recorder
	features *config.Features
	throttle *ipThrottle
	started  time.Time
	mux      *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Features == nil {
		deps.Features = &config.Features{SignupsEnabled: true}
	}
	if deps.RatePerMin <= 0 {
		deps.RatePerMin = 120
	}
	s := &Server{
		store:    deps.Store,
		verifier: deps.Verifier,
		trust:    deps.Trust,
		gate:     deps.Gate,
		limiter:  deps.Limiter,
		summary:  deps.Summary,
		feed:     deps.Feed,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		features: deps.Features,
		throttle: newIPThrottle(deps.RatePerMin),
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}

	s.setupRoutes(deps.Scrape)
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.loggingMiddleware(h)
	h = s.throttleMiddleware(h)
	h = requestIDMiddleware(h)
	h = corsMiddleware(h)
	h = securityHeadersMiddleware(h)
	return h
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(scrape http.Handler) {
	// Health check and scrape endpoint
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if scrape != nil {
		s.mux.Handle("GET /metrics", scrape)
	}

	// Dashboard reads
	s.mux.Handle("GET /api/v1/admin/summary", s.authMiddleware(http.HandlerFunc(s.handleSummary)))
	s.mux.Handle("GET /api/v1/admin/overview", s.authMiddleware(http.HandlerFunc(s.handleOverview)))
	s.mux.Handle("GET /api/v1/admin/users", s.authMiddleware(http.HandlerFunc(s.handleSearchUsers)))

	// Secondary password gates
	s.mux.Handle("POST /api/v1/admin/gate/{tier}/verify", s.authMiddleware(http.HandlerFunc(s.handleGateVerify)))
	s.mux.Handle("GET /api/v1/admin/gate/{tier}/status", s.authMiddleware(http.HandlerFunc(s.handleGateStatus)))

	// Runtime configuration document
	s.mux.Handle("GET /api/v1/admin/config", s.authMiddleware(http.HandlerFunc(s.handleGetConfig)))
	s.mux.Handle("PUT /api/v1/admin/config", s.authMiddleware(s.headAdminOnly(http.HandlerFunc(s.handleUpdateConfig))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		dbStatus = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"db":     dbStatus,
	})
}
