package utils

import (
	"errors"
	"testing"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, "OWNER", 15)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	cl, err := ParseAccessToken("s3cret", tok.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cl.UserID != 42 || cl.Role != "OWNER" {
		t.Fatalf("unexpected claims %+v", cl)
	}
	if _, err := ParseAccessToken("other", tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 1, "ADMIN", -1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseAccessToken("s3cret", tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("secret123", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(h, "secret123") || VerifyPassword(h, "wrong") {
		t.Fatalf("password verification mismatch")
	}
}

func TestPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("short", 4); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}
