package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestManager(t *testing.T) TokenManager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PasetoSecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()

	tm, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return tm
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tm := newTestManager(t)
	now := time.Now()

	tok, exp, err := tm.IssueAccess("user-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got, want := exp, now.Add(DefaultConfig().AccessTTL); !got.Equal(want) {
		t.Fatalf("exp = %v, want %v", got, want)
	}

	claims, err := tm.VerifyAccess(tok, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("UserID = %q", claims.UserID)
	}
	if claims.Issuer != "sparkwave" {
		t.Fatalf("Issuer = %q", claims.Issuer)
	}
}

func TestTokenPurposesAreNotInterchangeable(t *testing.T) {
	tm := newTestManager(t)
	now := time.Now()

	access, _, err := tm.IssueAccess("user-1", now)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, _, err := tm.IssueRefresh("user-1", "rot-1", now)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := tm.VerifyRefresh(access, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access as refresh: got %v, want ErrInvalidToken", err)
	}
	if _, err := tm.VerifyAccess(refresh, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh as access: got %v, want ErrInvalidToken", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	tm := newTestManager(t)
	now := time.Now()

	tok, _, err := tm.IssueAccess("user-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := []byte(tok)
	tampered[len(tampered)/2] ^= 0x01

	if _, err := tm.VerifyAccess(string(tampered), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestForeignKeyRejected(t *testing.T) {
	tm := newTestManager(t)
	other := newTestManager(t)
	now := time.Now()

	tok, _, err := other.IssueAccess("user-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tm.VerifyAccess(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tm := newTestManager(t)
	now := time.Now()

	tok, exp, err := tm.IssueAccess("user-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := tm.VerifyAccess(tok, exp.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestRefreshClaimsCarryRotationID(t *testing.T) {
	tm := newTestManager(t)
	now := time.Now()

	a, _, err := tm.IssueRefresh("user-1", "rot-a", now)
	if err != nil {
		t.Fatalf("issue a: %v", err)
	}
	b, _, err := tm.IssueRefresh("user-1", "rot-b", now)
	if err != nil {
		t.Fatalf("issue b: %v", err)
	}
	if a == b {
		t.Fatal("distinct rotation IDs must yield distinct credentials")
	}

	claims, err := tm.VerifyRefresh(a, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.RotationID != "rot-a" {
		t.Fatalf("RotationID = %q", claims.RotationID)
	}
}
