package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Settings is the operator-managed HCL settings document. It carries the
// bcrypt hashes for the privileged gates and coarse feature flags.
//
// The format is:
//
//	gate "admin" {
//	  password_hash = "$2a$10$..."
//	}
//
//	gate "head-admin" {
//	  password_hash = "$2a$10$..."
//	}
//
//	features {
//	  maintenance_banner = false
//	  signups_enabled    = true
//	}
type Settings struct {
	Gates    []GateSettings `hcl:"gate,block"`
	Features *Features      `hcl:"features,block"`
}

// GateSettings binds one privileged tier to its password hash. The hash is
// a bcrypt digest, never a plaintext password.
type GateSettings struct {
	Tier         string `hcl:"tier,label"`
	PasswordHash string `hcl:"password_hash"`
}

// Features are coarse operator toggles surfaced on the admin dashboard.
type Features struct {
	MaintenanceBanner bool `hcl:"maintenance_banner,optional"`
	SignupsEnabled    bool `hcl:"signups_enabled,optional"`
}

// ParseSettings parses an HCL settings document.
func ParseSettings(src []byte, filename string) (*Settings, error) {
	var settings Settings
	err := hclsimple.Decode(filename, src, nil, &settings)
	if err != nil {
		if diags, ok := err.(hcl.Diagnostics); ok {
			for _, diag := range diags {
				if diag.Severity == hcl.DiagError {
					return nil, fmt.Errorf("HCL parse error at %s: %s", diag.Subject, diag.Detail)
				}
			}
		}
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	seen := make(map[string]bool)
	for _, g := range settings.Gates {
		if g.PasswordHash == "" {
			return nil, fmt.Errorf("gate %q has an empty password_hash", g.Tier)
		}
		if seen[g.Tier] {
			return nil, fmt.Errorf("gate %q declared more than once", g.Tier)
		}
		seen[g.Tier] = true
	}
	if settings.Features == nil {
		settings.Features = &Features{SignupsEnabled: true}
	}
	return &settings, nil
}

// LoadSettings reads and parses an HCL settings file. A missing path
// returns empty settings so the server can run with gates disabled.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return &Settings{Features: &Features{SignupsEnabled: true}}, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	return ParseSettings(src, path)
}

// GateHashes returns the tier-to-hash map consumed by the gate verifier.
func (s *Settings) GateHashes() map[string]string {
	hashes := make(map[string]string, len(s.Gates))
	for _, g := range s.Gates {
		hashes[g.Tier] = g.PasswordHash
	}
	return hashes
}
