package security

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndParseAdminToken(t *testing.T) {
	token, err := SignAdminToken("test-secret", 42, "root", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseAdminToken("test-secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AdminID != 42 {
		t.Fatalf("expected admin id 42, got %d", claims.AdminID)
	}
	if claims.Username != "root" || claims.Subject != "root" {
		t.Fatalf("unexpected identity claims %+v", claims)
	}
	if claims.Issuer != "flagservice" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestParseAdminToken_WrongSecret(t *testing.T) {
	token, err := SignAdminToken("test-secret", 1, "root", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAdminToken("other-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseAdminToken_Expired(t *testing.T) {
	token, err := SignAdminToken("test-secret", 1, "root", time.Nanosecond)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAdminToken("test-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseAdminToken_Garbage(t *testing.T) {
	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAdminToken("test-secret", token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestSignAdminToken_Misconfigured(t *testing.T) {
	if _, err := SignAdminToken("", 1, "root", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := SignAdminToken("test-secret", 1, "root", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the plaintext")
	}
	if errVerify := VerifyPassword(hash, "s3cret-pass"); errVerify != nil {
		t.Fatalf("verify: %v", errVerify)
	}
	if errVerify := VerifyPassword(hash, "wrong-pass"); errVerify == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if err := VerifyPassword("", "anything"); err == nil {
		t.Fatal("expected error for empty hash")
	}
}
