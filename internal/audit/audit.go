// Package audit handles audit event recording with hash chaining
// to ensure tamper-evident logs.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kitbox/kitbox/internal/db"
)

// Store is the persistence surface the logger writes through. *db.DB
// satisfies it.
type Store interface {
	GetLastAuditHash(ctx context.Context) (string, error)
	CreateAuditEvent(ctx context.Context, actorType, actorID, action, resource, outcome, ip string, metadata json.RawMessage, prevHash, hash string) (*db.AuditEvent, error)
}

// Logger handles audit event creation with hash chaining.
type Logger struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex // Ensures serial hash chaining
}

// NewLogger creates a new audit logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Event represents the data for creating an audit event.
type Event struct {
	ActorType string // "admin", "head-admin", or "system"
	ActorID   string
	Action    string // e.g., "gate.verify", "admin.promote", "config.update"
	Resource  string // e.g., "gate/head-admin", "users/u123"
	Outcome   string // "success", "denied", "error"
	IP        string
	Metadata  json.RawMessage // Additional context (NEVER contains credential material)
}

// Log records an audit event with hash chaining.
// The hash chain provides tamper evidence: each event's hash includes the previous event's hash.
func (l *Logger) Log(ctx context.Context, event Event) (*db.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Get the previous hash for chaining
	prevHash, err := l.store.GetLastAuditHash(ctx)
	if err != nil {
		// Don't fail the operation because of audit, but start a fresh chain
		prevHash = ""
	}

	// Compute hash: SHA-256 of (prev_hash + timestamp + actor + action + resource + outcome)
	hash := computeHash(prevHash, l.now().UTC(), event)

	return l.store.CreateAuditEvent(
		ctx,
		event.ActorType,
		event.ActorID,
		event.Action,
		event.Resource,
		event.Outcome,
		event.IP,
		event.Metadata,
		prevHash,
		hash,
	)
}

// computeHash creates a SHA-256 hash for an audit event, chained to the previous hash.
func computeHash(prevHash string, at time.Time, event Event) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		prevHash,
		at.Format(time.RFC3339Nano),
		event.ActorType+":"+event.ActorID,
		event.Action,
		event.Resource,
		event.Outcome,
		string(event.Metadata),
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
