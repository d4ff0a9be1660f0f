package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateBody(password string) map[string]string {
	return map[string]string{"password": password}
}

func TestGateVerifySuccess(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("opensesame"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Verified bool   `json:"verified"`
		Tier     string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, "admin", resp.Tier)

	require.Len(t, env.audit.events, 1)
	assert.Equal(t, "gate.verify", env.audit.events[0].Action)
	assert.Equal(t, "success", env.audit.events[0].Outcome)
}

func TestGateVerifyWrongPasswordCountsDown(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		Error        string `json:"error"`
		AttemptsLeft int    `json:"attemptsLeft"`
	}
	for want := 3; want >= 1; want-- {
		rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("nope"))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, want, resp.AttemptsLeft)
	}

	// The fourth failure trips the lockout.
	rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("nope"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// While locked, even the correct password is rejected.
	rec = env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("opensesame"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGateVerifyUnknownTier(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/owner/verify", "admin-token", gateBody("opensesame"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateVerifyRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "", gateBody("opensesame"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateVerifyThrottled(t *testing.T) {
	env := newTestEnv(t)

	// Exhaust the fixed-window allowance for this (gate, tier, ip) key.
	// Successful verifications reset the lockout, so only the throttle
	// can reject here.
	for i := 0; i < gateAttemptLimit; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("opensesame"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("opensesame"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "too many attempts", resp.Error)
	assert.Greater(t, resp.RetryAfter, 0)
}

func TestGateStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/gate/admin/status", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tier       string `json:"tier"`
		Locked     bool   `json:"locked"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "admin", resp.Tier)
	assert.False(t, resp.Locked)

	// Trip the lockout, then the status should report it.
	for i := 0; i < 4; i++ {
		env.do(t, http.MethodPost, "/api/v1/admin/gate/admin/verify", "admin-token", gateBody("nope"))
	}
	rec = env.do(t, http.MethodGet, "/api/v1/admin/gate/admin/status", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Locked)
	assert.Greater(t, resp.RetryAfter, 0)
}
