package db

import (
	"encoding/json"
	"time"
)

// Profile represents a per-identity profile document.
type Profile struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsAdmin     bool       `json:"is_admin"`
	Protected   bool       `json:"protected"`
	Disabled    bool       `json:"disabled"`
	Banned      bool       `json:"banned"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AuthAccount represents an identity in the auth directory.
type AuthAccount struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRecord is one tool execution from an identity's history shard.
// Path is the record's document path ("users/<uid>/history/<id>"); the
// owning identity is always projected from Path, never stored on the record.
type HistoryRecord struct {
	Path string    `json:"path"`
	Tool string    `json:"tool"`
	TS   time.Time `json:"ts"`
}

// FeedbackRecord is a piece of end-user feedback about a tool.
type FeedbackRecord struct {
	ID      string    `json:"id"`
	Owner   string    `json:"owner"`
	Tool    string    `json:"tool"`
	Message string    `json:"message"`
	Rating  *int      `json:"rating,omitempty"`
	TS      time.Time `json:"ts"`
}

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	ActorType string          `json:"actor_type"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	Outcome   string          `json:"outcome"`
	IP        string          `json:"ip,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`
	Hash      string          `json:"hash"`
}

// LockoutState is the durable failure-counting state for one gate key.
type LockoutState struct {
	Key          string     `json:"key"`
	FailureCount int        `json:"failure_count"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
}

// RateBucket is one fixed-window counter row.
type RateBucket struct {
	Key         string    `json:"key"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// RuntimeConfig is the persisted maintenance / feature configuration document.
type RuntimeConfig struct {
	MaintenanceMode bool      `json:"maintenance_mode"`
	BetaPercent     int       `json:"beta_percent"`
	APIVersion      string    `json:"api_version"`
	UpdatedAt       time.Time `json:"updated_at"`
}
