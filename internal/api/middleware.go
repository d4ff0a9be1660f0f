package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kitbox/kitbox/internal/auth"
)

// securityHeadersMiddleware adds standard security headers to all responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS preflight and headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	ctxClaims    contextKey = "claims"
	ctxTier      contextKey = "tier"
	ctxClientIP  contextKey = "client_ip"
	ctxRequestID contextKey = "request_id"
)

// requestIDMiddleware adds a unique X-Request-ID header to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), ctxRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ---- General per-IP throttle ----

// ipThrottle holds one token-bucket limiter per client IP. This is the
// coarse request throttle; the per-operation fixed-window limiter guards
// the gate endpoints separately.
type ipThrottle struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rate     rate.Limit
	burst    int
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPThrottle(perMin int) *ipThrottle {
	t := &ipThrottle{
		limiters: make(map[string]*ipEntry),
		rate:     rate.Limit(float64(perMin) / 60.0),
		burst:    perMin,
	}
	go t.cleanup()
	return t
}

func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.limiters[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// cleanup removes stale limiters every 5 minutes.
func (t *ipThrottle) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for ip, e := range t.limiters {
			if e.lastSeen.Before(cutoff) {
				delete(t.limiters, ip)
			}
		}
		t.mu.Unlock()
	}
}

// throttleMiddleware enforces the general per-IP request throttle.
func (s *Server) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.throttle.allow(ip) {
			s.metrics.RecordRateLimited("ip")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs request info and records request metrics. Never
// logs token or password material.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)

		reqID := ""
		if id, ok := r.Context().Value(ctxRequestID).(string); ok {
			reqID = id
		}

		elapsed := time.Since(start)
		s.metrics.RecordRequest(r.Method, r.URL.Path, wrapped.status)
		s.metrics.RecordRequestLatency(elapsed)
		log.Printf("[%s] %s %s %d %s [%s]",
			reqID,
			r.Method, r.URL.Path, wrapped.status,
			elapsed.Round(time.Millisecond),
			clientIP(r),
		)
	})
}

// statusRecorder wraps http.ResponseWriter to capture status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// authMiddleware validates the bearer token and requires admin trust. The
// caller's claims and privilege tier are placed on the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := s.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				writeError(w, http.StatusUnauthorized, "token expired")
			default:
				writeError(w, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		ctx := r.Context()
		if !s.trust.IsAdmin(ctx, claims, s.store) {
			writeError(w, http.StatusForbidden, "admin privilege required")
			return
		}
		tier := s.trust.TierOf(ctx, claims, s.store, s.store)

		ctx = context.WithValue(ctx, ctxClaims, claims)
		ctx = context.WithValue(ctx, ctxTier, tier)
		ctx = context.WithValue(ctx, ctxClientIP, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// headAdminOnly restricts a route to the highest privilege tier.
func (s *Server) headAdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if getTier(r.Context()) != auth.TierHead {
			writeError(w, http.StatusForbidden, "head admin privilege required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClaims extracts verified claims from context.
func getClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ctxClaims).(*auth.Claims)
	return claims
}

// getTier returns the caller's privilege tier from context.
func getTier(ctx context.Context) auth.Tier {
	tier, _ := ctx.Value(ctxTier).(auth.Tier)
	return tier
}

// getClientIP returns the client IP from context.
func getClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxClientIP).(string)
	return ip
}

// clientIP extracts the client IP from the request.
// Only uses r.RemoteAddr to prevent spoofing via X-Forwarded-For headers.
// If running behind a trusted reverse proxy, configure the proxy to set
// a trusted header and update this function accordingly.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
