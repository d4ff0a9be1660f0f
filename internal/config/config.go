// Package config loads server configuration from the environment plus an
// optional HCL settings file for gate passwords and feature flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything the server reads from the environment.
type Config struct {
	ListenAddr          string
	DatabaseURL         string
	SettingsFile        string
	AdminAllowlist      []string
	HeadAdminAllowlist  []string
	DevCredentialReload bool
	RateLimitPerMin     int
}

// Load reads configuration through the given lookup function. Pass
// os.LookupEnv in production; tests inject a map-backed lookup.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{
		ListenAddr:      getEnv(lookup, "LISTEN_ADDR", ":8080"),
		SettingsFile:    getEnv(lookup, "SETTINGS_FILE", ""),
		RateLimitPerMin: 120,
	}

	url, err := requireEnv(lookup, "DATABASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = url

	cfg.AdminAllowlist = splitList(getEnv(lookup, "ADMIN_ALLOWLIST", ""))
	cfg.HeadAdminAllowlist = splitList(getEnv(lookup, "HEAD_ADMIN_ALLOWLIST", ""))

	if v := getEnv(lookup, "DEV_CREDENTIAL_RELOAD", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parsing DEV_CREDENTIAL_RELOAD: %w", err)
		}
		cfg.DevCredentialReload = b
	}
	if v := getEnv(lookup, "RATE_LIMIT_PER_MIN", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("RATE_LIMIT_PER_MIN must be a positive integer, got %q", v)
		}
		cfg.RateLimitPerMin = n
	}
	return cfg, nil
}

// FromEnv loads configuration from the process environment.
func FromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

func requireEnv(lookup func(string) (string, bool), key string) (string, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}

func getEnv(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated list, trimming whitespace and
// lowercasing entries so email comparisons are case-insensitive.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
