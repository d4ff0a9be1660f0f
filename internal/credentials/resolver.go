// Package credentials bootstraps the backend signing credential from
// inconsistently-encoded environment secrets. Resolution tries an ordered
// list of strategies and freezes the first successful bundle for the
// process lifetime.
package credentials

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Environment keys consumed by the resolver.
const (
	EnvProjectID       = "SIGNER_PROJECT_ID"
	EnvClientEmail     = "SIGNER_CLIENT_EMAIL"
	EnvPrivateKey      = "SIGNER_PRIVATE_KEY"
	EnvCredentialsJSON = "SIGNER_CREDENTIALS_JSON"
	EnvKeyFile         = "SIGNER_KEY_FILE"
)

// ErrNoCredentials is the terminal resolution failure: every strategy was
// exhausted and no privileged capability can be served.
var ErrNoCredentials = errors.New("credentials: all strategies exhausted")

// Bundle is the process-lifetime credential handle. It is built once by the
// resolver and shared read-only by every consumer.
type Bundle struct {
	ProjectID   string
	ClientEmail string
	// PrivateKeyPEM is the fully normalized key material. Never log it.
	PrivateKeyPEM string
	Key           *rsa.PrivateKey
	// Strategy names the strategy that produced this bundle.
	Strategy string
}

// Attempt records one strategy's outcome for diagnostics. Reason never
// contains secret material.
type Attempt struct {
	Strategy string `json:"strategy"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

// Resolver resolves and caches the credential bundle.
type Resolver struct {
	lookup    func(string) string
	readFile  func(string) ([]byte, error)
	devReload bool

	mu       sync.Mutex
	bundle   *Bundle
	attempts []Attempt
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup overrides the environment lookup. Used by tests.
func WithLookup(lookup func(string) string) Option {
	return func(r *Resolver) { r.lookup = lookup }
}

// WithReadFile overrides key-file reads. Used by tests.
func WithReadFile(read func(string) ([]byte, error)) Option {
	return func(r *Resolver) { r.readFile = read }
}

// WithDevReload permits Rebuild. Without it the bundle is frozen after the
// first successful resolution; repeated Resolve calls never rebuild.
func WithDevReload(enabled bool) Option {
	return func(r *Resolver) { r.devReload = enabled }
}

// NewResolver creates a Resolver reading from the process environment.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		lookup:   os.Getenv,
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type strategy struct {
	name  string
	build func() (*Bundle, error)
}

func (r *Resolver) strategies() []strategy {
	return []strategy{
		{"decomposed-fields", r.fromFields},
		{"json-blob", r.fromJSON},
		{"ambient", r.fromAmbient},
	}
}

// Resolve returns the credential bundle, building it on first use. All
// strategies failing is fatal for the privileged surface; the aggregated
// failure reasons are available via Attempts.
func (r *Resolver) Resolve() (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bundle != nil {
		return r.bundle, nil
	}
	return r.resolveLocked()
}

// Rebuild discards the cached bundle and resolves again. It is a development
// aid and refuses to run unless the resolver was built with WithDevReload.
func (r *Resolver) Rebuild() (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.devReload {
		return nil, errors.New("credentials: rebuild requires dev reload mode")
	}
	r.bundle = nil
	return r.resolveLocked()
}

// Attempts reports the outcome of each strategy tried during the most recent
// resolution.
func (r *Resolver) Attempts() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

func (r *Resolver) resolveLocked() (*Bundle, error) {
	r.attempts = r.attempts[:0]

	var reasons []string
	for _, s := range r.strategies() {
		bundle, err := s.build()
		if err != nil {
			r.attempts = append(r.attempts, Attempt{Strategy: s.name, Reason: err.Error()})
			reasons = append(reasons, fmt.Sprintf("%s: %v", s.name, err))
			log.Printf("credential strategy %q failed: %v", s.name, err)
			continue
		}
		bundle.Strategy = s.name
		r.attempts = append(r.attempts, Attempt{Strategy: s.name, OK: true})
		r.bundle = bundle
		log.Printf("credentials resolved via %q strategy (project %s)", s.name, bundle.ProjectID)
		return bundle, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoCredentials, strings.Join(reasons, "; "))
}

// fromFields builds a bundle from three separate config entries.
func (r *Resolver) fromFields() (*Bundle, error) {
	projectID := strings.TrimSpace(r.lookup(EnvProjectID))
	clientEmail := strings.TrimSpace(r.lookup(EnvClientEmail))
	rawKey := r.lookup(EnvPrivateKey)

	if projectID == "" || clientEmail == "" || rawKey == "" {
		return nil, errors.New("missing one of project id, client email, private key")
	}
	return buildBundle(projectID, clientEmail, rawKey)
}

// fromJSON builds a bundle from a single JSON credential document.
func (r *Resolver) fromJSON() (*Bundle, error) {
	blob := strings.TrimSpace(r.lookup(EnvCredentialsJSON))
	if blob == "" {
		return nil, errors.New("no credentials JSON set")
	}

	var doc struct {
		ProjectID   string `json:"project_id"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fmt.Errorf("parsing credentials JSON: %w", err)
	}
	if doc.ProjectID == "" || doc.ClientEmail == "" || doc.PrivateKey == "" {
		return nil, errors.New("credentials JSON missing required fields")
	}
	return buildBundle(doc.ProjectID, doc.ClientEmail, doc.PrivateKey)
}

// fromAmbient builds a bundle from only a project id, deferring to the key
// material the deployment environment provides at a conventional location.
func (r *Resolver) fromAmbient() (*Bundle, error) {
	projectID := strings.TrimSpace(r.lookup(EnvProjectID))
	if projectID == "" {
		return nil, errors.New("no project id for ambient credentials")
	}

	keyFile := r.lookup(EnvKeyFile)
	if keyFile == "" {
		keyFile = "/var/run/secrets/kitbox/signer.pem"
	}
	raw, err := r.readFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading ambient key file: %w", err)
	}
	return buildBundle(projectID, "ambient@"+projectID, string(raw))
}

// buildBundle normalizes the key material and proves it parses as an RSA key
// before the bundle is handed out.
func buildBundle(projectID, clientEmail, rawKey string) (*Bundle, error) {
	pemKey := NormalizePrivateKeyPEM(rawKey)
	if pemKey == "" {
		return nil, errors.New("private key empty after normalization")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return &Bundle{
		ProjectID:     projectID,
		ClientEmail:   clientEmail,
		PrivateKeyPEM: pemKey,
		Key:           key,
	}, nil
}
