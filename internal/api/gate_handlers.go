package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kitbox/kitbox/internal/audit"
	"github.com/kitbox/kitbox/internal/gate"
)

// gateAttemptLimit bounds verification attempts per (gate, tier, ip) before
// the lockout machinery is even consulted.
const (
	gateAttemptLimit  = 10
	gateAttemptWindow = time.Minute
)

// handleGateVerify checks a secondary gate password. Order of defenses:
// fixed-window rate limit, then lockout state, then the bcrypt comparison.
func (s *Server) handleGateVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tier := r.PathValue("tier")
	ip := getClientIP(ctx)

	decision, err := s.limiter.Allow(ctx, "gate:"+gate.Key(tier, ip), gateAttemptLimit, gateAttemptWindow)
	if err != nil {
		// The lockout state machine still guards the gate, so a broken
		// throttle backend degrades open rather than blocking all admins.
		log.Printf("gate throttle check failed, admitting attempt: %v", err)
	} else if !decision.Allowed {
		s.metrics.RecordRateLimited("gate")
		retryAfter := int(decision.RetryAfter(time.Now()).Seconds() + 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "too many attempts",
			"retryAfter": retryAfter,
		})
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = s.gate.Verify(ctx, tier, ip, req.Password)
	s.logGateAttempt(r, tier, err)

	var locked *gate.LockedError
	var wrong *gate.WrongPasswordError
	switch {
	case err == nil:
		s.metrics.RecordGateAttempt(tier, "success")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"verified": true,
			"tier":     tier,
		})
	case errors.Is(err, gate.ErrUnknownTier):
		writeError(w, http.StatusNotFound, "unknown gate tier")
	case errors.As(err, &locked):
		s.metrics.RecordGateAttempt(tier, "locked")
		s.metrics.RecordLockoutTrip(tier)
		retryAfter := int(locked.Remaining(time.Now()).Seconds() + 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "gate locked",
			"retryAfter": retryAfter,
		})
	case errors.As(err, &wrong):
		s.metrics.RecordGateAttempt(tier, "denied")
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":        "invalid gate password",
			"attemptsLeft": wrong.AttemptsLeft,
		})
	default:
		writeError(w, http.StatusInternalServerError, "gate verification failed")
	}
}

// handleGateStatus reports whether the caller's gate key is currently
// locked, as a UX hint. Every attempt is still re-validated server-side.
func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tier := r.PathValue("tier")

	locked, retryAfter, err := s.gate.Status(ctx, tier, getClientIP(ctx))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading gate status failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":       tier,
		"locked":     locked,
		"retryAfter": int(retryAfter.Seconds()),
	})
}

// logGateAttempt records every gate attempt in the audit log. The password
// itself is never logged.
func (s *Server) logGateAttempt(r *http.Request, tier string, verifyErr error) {
	if s.audit == nil {
		return
	}
	ctx := r.Context()
	outcome := "success"
	if verifyErr != nil {
		outcome = "denied"
	}
	claims := getClaims(ctx)
	actorID := ""
	if claims != nil {
		actorID = claims.UID
	}
	if _, err := s.audit.Log(ctx, audit.Event{
		ActorType: string(getTier(ctx)),
		ActorID:   actorID,
		Action:    "gate.verify",
		Resource:  "gate/" + tier,
		Outcome:   outcome,
		IP:        getClientIP(ctx),
	}); err != nil {
		log.Printf("audit write failed for gate.verify: %v", err)
	}
}
