// Package auth verifies bearer identity tokens and resolves administrative
// trust from layered authority sources: signed claims, the bootstrap
// allowlist, and persisted profile state.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kitbox/kitbox/internal/credentials"
)

var (
	// ErrNoToken means the request carried no bearer token.
	ErrNoToken = errors.New("missing bearer token")
	// ErrInvalidToken means the token failed signature or shape validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken means the token was valid once but has expired.
	ErrExpiredToken = errors.New("expired token")
	// ErrNotAdmin means the caller authenticated but holds no admin privilege.
	ErrNotAdmin = errors.New("admin privilege required")
)

// Claims are the verified attributes of one identity token. Immutable once
// verified; they live for a single request.
type Claims struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Admin     bool   `json:"admin,omitempty"`
	HeadAdmin bool   `json:"head_admin,omitempty"`
	jwt.RegisteredClaims
}

// Verifier verifies and mints RS256 identity tokens using the resolved
// service credential. The credential bundle is shared read-only.
type Verifier struct {
	bundle *credentials.Bundle
}

// NewVerifier creates a Verifier bound to the process credential bundle.
func NewVerifier(bundle *credentials.Bundle) *Verifier {
	return &Verifier{bundle: bundle}
}

// Verify parses and validates a bearer token string.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &v.bundle.Key.PublicKey, nil
	}, jwt.WithAudience(v.bundle.ProjectID), jwt.WithIssuer(v.bundle.ClientEmail))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Mint signs an identity token. Used by the CLI and by tests; the serving
// path only verifies.
func (v *Verifier) Mint(uid, email string, admin, headAdmin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UID:       uid,
		Email:     email,
		Admin:     admin,
		HeadAdmin: headAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Audience:  jwt.ClaimStrings{v.bundle.ProjectID},
			Issuer:    v.bundle.ClientEmail,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(v.bundle.Key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
