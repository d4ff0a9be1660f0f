package auth

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/kitbox/kitbox/internal/db"
)

// Tier is an administrative privilege tier. Precedence: Head > Global > Legacy.
type Tier string

const (
	// TierLegacy marks identities that exist only in persisted-profile form,
	// with no resolvable auth-directory record. Lowest confidence.
	TierLegacy Tier = "legacy"
	// TierGlobal is the standard admin tier.
	TierGlobal Tier = "global"
	// TierHead is the highest tier, granted by claim or head allowlist.
	TierHead Tier = "head"
)

// AdminRecord is the dashboard-facing view of one administrator.
type AdminRecord struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Tier      Tier   `json:"tier"`
	Protected bool   `json:"protected"`
	Disabled  bool   `json:"disabled"`
	Banned    bool   `json:"banned"`
}

// ProfileStore is the profile lookup the evaluator performs on demand.
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*db.Profile, error)
}

// DirectoryStore resolves identities against the auth directory.
type DirectoryStore interface {
	GetAuthAccount(ctx context.Context, uid string) (*db.AuthAccount, error)
}

// Evaluator decides administrative trust from layered authority sources.
type Evaluator struct {
	allowlist     map[string]bool
	headAllowlist map[string]bool
}

// NewEvaluator builds an Evaluator from the bootstrap allowlists
// (comma-separated email lists from configuration).
func NewEvaluator(allowlist, headAllowlist []string) *Evaluator {
	return &Evaluator{
		allowlist:     emailSet(allowlist),
		headAllowlist: emailSet(headAllowlist),
	}
}

func emailSet(emails []string) map[string]bool {
	set := make(map[string]bool, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = true
		}
	}
	return set
}

// Allowlisted reports whether an email is on either bootstrap allowlist.
func (e *Evaluator) Allowlisted(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	return e.allowlist[email] || e.headAllowlist[email]
}

// HeadAllowlisted reports whether an email is on the head-admin allowlist.
func (e *Evaluator) HeadAllowlisted(email string) bool {
	return e.headAllowlist[strings.ToLower(strings.TrimSpace(email))]
}

// IsAdmin evaluates admin privilege, short-circuit, in order: token claim,
// bootstrap allowlist, persisted profile flag. A failing profile read yields
// false — a read failure must never escalate privilege.
func (e *Evaluator) IsAdmin(ctx context.Context, claims *Claims, profiles ProfileStore) bool {
	if claims == nil {
		return false
	}
	if claims.Admin || claims.HeadAdmin {
		return true
	}
	if e.Allowlisted(claims.Email) {
		return true
	}

	profile, err := profiles.GetProfile(ctx, claims.UID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("profile lookup failed for %s, denying admin: %v", claims.UID, err)
		}
		return false
	}
	return profile.IsAdmin
}

// TierOf resolves the caller's privilege tier. Head comes from the head_admin
// claim or the head allowlist; identities whose auth-directory record cannot
// be resolved are Legacy; everything else is Global.
func (e *Evaluator) TierOf(ctx context.Context, claims *Claims, profiles ProfileStore, directory DirectoryStore) Tier {
	if claims.HeadAdmin || e.HeadAllowlisted(claims.Email) {
		return TierHead
	}
	if _, err := directory.GetAuthAccount(ctx, claims.UID); err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("directory lookup failed for %s, treating as legacy: %v", claims.UID, err)
		}
		return TierLegacy
	}
	return TierGlobal
}

// RecordFor builds the dashboard view of an admin profile, resolving its
// tier against the auth directory.
func (e *Evaluator) RecordFor(ctx context.Context, p db.Profile, directory DirectoryStore) AdminRecord {
	tier := TierGlobal
	if e.HeadAllowlisted(p.Email) {
		tier = TierHead
	} else if _, err := directory.GetAuthAccount(ctx, p.UID); err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("directory lookup failed for %s, treating as legacy: %v", p.UID, err)
		}
		tier = TierLegacy
	}
	return AdminRecord{
		UID:       p.UID,
		Email:     p.Email,
		Tier:      tier,
		Protected: p.Protected,
		Disabled:  p.Disabled,
		Banned:    p.Banned,
	}
}
