package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/kitbox/kitbox/internal/credentials"
)

func testBundle(t *testing.T) *credentials.Bundle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return &credentials.Bundle{
		ProjectID:   "kitbox-test",
		ClientEmail: "signer@kitbox-test.example.com",
		Key:         key,
	}
}

func TestMintAndVerifyRoundtrip(t *testing.T) {
	v := NewVerifier(testBundle(t))

	token, err := v.Mint("u-123", "user@example.com", true, false, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UID != "u-123" || claims.Email != "user@example.com" || !claims.Admin || claims.HeadAdmin {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	v := NewVerifier(testBundle(t))
	if _, err := v.Verify(""); !errors.Is(err, ErrNoToken) {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier(testBundle(t))
	token, err := v.Mint("u-123", "user@example.com", false, false, -time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("error = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	minter := NewVerifier(testBundle(t))
	verifier := NewVerifier(testBundle(t))

	token, err := minter.Mint("u-123", "user@example.com", false, false, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier(testBundle(t))
	if _, err := v.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}
