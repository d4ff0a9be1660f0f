package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbox/kitbox/internal/analytics"
	"github.com/kitbox/kitbox/internal/audit"
	"github.com/kitbox/kitbox/internal/auth"
	"github.com/kitbox/kitbox/internal/db"
	"github.com/kitbox/kitbox/internal/gate"
	"github.com/kitbox/kitbox/internal/ratelimit"
)

type fakeStore struct {
	profiles  map[string]*db.Profile
	accounts  map[string]*db.AuthAccount
	admins    []db.Profile
	searched  []db.Profile
	cfg       db.RuntimeConfig
	pingErr   error
	cfgErr    error
	searchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*db.Profile),
		accounts: make(map[string]*db.AuthAccount),
		cfg:      db.RuntimeConfig{APIVersion: "v1", UpdatedAt: time.Now()},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) GetProfile(ctx context.Context, uid string) (*db.Profile, error) {
	if p, ok := f.profiles[uid]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) GetAuthAccount(ctx context.Context, uid string) (*db.AuthAccount, error) {
	if a, ok := f.accounts[uid]; ok {
		return a, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) SearchProfiles(ctx context.Context, search string, limit int) ([]db.Profile, error) {
	return f.searched, f.searchErr
}

func (f *fakeStore) ListAdminProfiles(ctx context.Context) ([]db.Profile, error) {
	return f.admins, nil
}

func (f *fakeStore) GetRuntimeConfig(ctx context.Context) (*db.RuntimeConfig, error) {
	if f.cfgErr != nil {
		return nil, f.cfgErr
	}
	copied := f.cfg
	return &copied, nil
}

func (f *fakeStore) UpdateRuntimeConfig(ctx context.Context, maintenanceMode bool, betaPercent int, apiVersion string) (*db.RuntimeConfig, error) {
	f.cfg = db.RuntimeConfig{
		MaintenanceMode: maintenanceMode,
		BetaPercent:     betaPercent,
		APIVersion:      apiVersion,
		UpdatedAt:       time.Now(),
	}
	copied := f.cfg
	return &copied, nil
}

type fakeVerifier struct {
	tokens map[string]*auth.Claims
}

func (f *fakeVerifier) Verify(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, auth.ErrNoToken
	}
	if token == "expired" {
		return nil, auth.ErrExpiredToken
	}
	if c, ok := f.tokens[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

type fakeSummarizer struct {
	snap *analytics.Snapshot
	err  error
}

func (f *fakeSummarizer) Aggregate(ctx context.Context) (*analytics.Snapshot, error) {
	return f.snap, f.err
}

type fakeFeed struct {
	entries []analytics.FeedEntry
}

func (f *fakeFeed) Merge(ctx context.Context) []analytics.FeedEntry { return f.entries }

type fakeAudit struct {
	events []audit.Event
}

func (f *fakeAudit) Log(ctx context.Context, event audit.Event) (*db.AuditEvent, error) {
	f.events = append(f.events, event)
	return &db.AuditEvent{Action: event.Action}, nil
}

type testEnv struct {
	server  *Server
	store   *fakeStore
	audit   *fakeAudit
	summary *fakeSummarizer
	feed    *fakeFeed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	// Known identities: an admin resolvable in the directory, a head admin,
	// and a plain user.
	store.accounts["admin-uid"] = &db.AuthAccount{UID: "admin-uid", Email: "admin@example.com"}
	store.accounts["head-uid"] = &db.AuthAccount{UID: "head-uid", Email: "head@example.com"}
	store.profiles["user-uid"] = &db.Profile{UID: "user-uid", Email: "user@example.com"}

	hash, err := gate.HashPassword("opensesame")
	require.NoError(t, err)

	auditSink := &fakeAudit{}
	summary := &fakeSummarizer{snap: &analytics.Snapshot{TotalUsers: 42}}
	feed := &fakeFeed{}

	server := NewServer(Deps{
		Store: store,
		Verifier: &fakeVerifier{tokens: map[string]*auth.Claims{
			"admin-token": {UID: "admin-uid", Email: "admin@example.com", Admin: true},
			"head-token":  {UID: "head-uid", Email: "head@example.com", Admin: true, HeadAdmin: true},
			"user-token":  {UID: "user-uid", Email: "user@example.com"},
		}},
		Trust:   auth.NewEvaluator(nil, nil),
		Gate:    gate.New(gate.NewMemoryLockoutStore(), map[string]string{gate.TierAdmin: hash}),
		Limiter: ratelimit.NewMemoryLimiter(),
		Summary: summary,
		Feed:    feed,
		Audit:   auditSink,
	})
	return &testEnv{server: server, store: store, audit: auditSink, summary: summary, feed: feed}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = "10.0.0.9:54321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}

func TestHealthDegradedDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.store.pingErr = errors.New("connection refused")

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db":"degraded"`)
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "garbage", http.StatusUnauthorized},
		{"expired token", "expired", http.StatusUnauthorized},
		{"authenticated non-admin", "user-token", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/admin/summary", tt.token, nil)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestAuthNeverEscalatesOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	// A plain user whose profile read now fails must stay denied.
	delete(env.store.profiles, "user-uid")

	rec := env.do(t, http.MethodGet, "/api/v1/admin/summary", "user-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)
	env.summary.snap = &analytics.Snapshot{
		TotalUsers:    42,
		TotalFeedback: 7,
		TopTools:      []analytics.ToolCount{{Name: "formatter", Usage: 9}},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/summary", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap analytics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 42, snap.TotalUsers)
	assert.Equal(t, 7, snap.TotalFeedback)
	require.Len(t, snap.TopTools, 1)
	assert.Equal(t, "formatter", snap.TopTools[0].Name)
}

func TestSummaryAggregationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.summary.snap = nil
	env.summary.err = errors.New("store down")

	rec := env.do(t, http.MethodGet, "/api/v1/admin/summary", "admin-token", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOverviewSectionsDegradeIndependently(t *testing.T) {
	env := newTestEnv(t)
	env.store.admins = []db.Profile{
		{UID: "admin-uid", Email: "admin@example.com", IsAdmin: true},
	}
	env.store.cfgErr = errors.New("config read failed")
	env.feed.entries = []analytics.FeedEntry{
		{ID: "e1", Action: "TOOL_EXECUTED", SourceType: analytics.SourceUsage},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/overview", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp overviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Metrics.DBStatus)
	assert.Equal(t, "elevated", resp.Metrics.SecurityLevel)
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, "TOOL_EXECUTED", resp.Logs[0].Action)
	require.Len(t, resp.Admins, 1)
	assert.Equal(t, auth.TierGlobal, resp.Admins[0].Tier)
	// Failed config section ships as its zero value.
	assert.Equal(t, 0, resp.Config.BetaPercent)
	assert.Empty(t, resp.Config.APIVersion)
}

func TestOverviewHeadSecurityLevel(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/admin/overview", "head-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp overviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "maximum", resp.Metrics.SecurityLevel)
}

func TestSearchUsers(t *testing.T) {
	env := newTestEnv(t)
	env.store.searched = []db.Profile{
		{UID: "u1", Email: "alice@example.com", Name: "Alice"},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/users?search=ali", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Users []db.Profile `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "Alice", resp.Users[0].Name)
}

func TestSearchUsersInvalidLimit(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/admin/users?limit=banana", "admin-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigUpdateRequiresHeadAdmin(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{"maintenanceMode": true, "betaPercent": 25, "apiVersion": "v2"}

	rec := env.do(t, http.MethodPut, "/api/v1/admin/config", "admin-token", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/config", "head-token", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg db.RuntimeConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.True(t, cfg.MaintenanceMode)
	assert.Equal(t, 25, cfg.BetaPercent)
	assert.Equal(t, "v2", cfg.APIVersion)

	require.Len(t, env.audit.events, 1)
	assert.Equal(t, "config.update", env.audit.events[0].Action)
	assert.Equal(t, "head-uid", env.audit.events[0].ActorID)
}

func TestConfigUpdateRejectsBadBetaPercent(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{"betaPercent": 150}

	rec := env.do(t, http.MethodPut, "/api/v1/admin/config", "head-token", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t)
	env.store.cfg = db.RuntimeConfig{BetaPercent: 10, APIVersion: "v1"}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/config", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg db.RuntimeConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 10, cfg.BetaPercent)
}
