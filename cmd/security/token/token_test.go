package token

import "testing"

func TestHashCredentialHex_SHA256Fallback(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	h := HashCredentialHex("some-refresh-credential")
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
	if h != HashSHA256Hex("some-refresh-credential") {
		t.Fatalf("expected plain SHA-256 fallback without HMAC key")
	}
	if h == HashCredentialHex("other") {
		t.Fatalf("distinct inputs must not collide")
	}
}

func TestHashCredentialHex_HMACWhenKeySet(t *testing.T) {
	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")

	h := HashCredentialHex("some-refresh-credential")
	if h == HashSHA256Hex("some-refresh-credential") {
		t.Fatalf("expected HMAC digest to differ from plain SHA-256")
	}
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	key, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("HMACKeyFromEnv: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 key bytes, got %d", len(key))
	}
}
