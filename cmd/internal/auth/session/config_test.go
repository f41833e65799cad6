package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestLoadConfigFromEnv(t *testing.T) {
	key := paseto.NewV4AsymmetricSecretKey().ExportHex()

	t.Setenv("SW_PASETO_SECRET_KEY_HEX", key)
	t.Setenv("SW_AUTH_ISSUER", "sparkwave-test")
	t.Setenv("SW_AUTH_ACCESS_TTL", "5m")
	t.Setenv("SW_AUTH_REFRESH_TTL", "72h")
	t.Setenv("SW_AUTH_CLOCK_SKEW", "10s")
	t.Setenv("SW_AUTH_REVOKE_CHAIN_ON_REUSE", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Issuer != "sparkwave-test" {
		t.Fatalf("Issuer = %q", cfg.Issuer)
	}
	if cfg.AccessTTL != 5*time.Minute || cfg.RefreshTTL != 72*time.Hour {
		t.Fatalf("TTLs = %v / %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.ClockSkew != 10*time.Second {
		t.Fatalf("ClockSkew = %v", cfg.ClockSkew)
	}
	if cfg.RevokeChainOnReuse {
		t.Fatal("RevokeChainOnReuse should be off")
	}
}

func TestLoadConfigRequiresSecretKey(t *testing.T) {
	t.Setenv("SW_PASETO_SECRET_KEY_HEX", "")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("got %v, want ErrConfig", err)
	}
}

func TestLoadConfigRejectsInvertedTTLs(t *testing.T) {
	t.Setenv("SW_PASETO_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("SW_AUTH_ACCESS_TTL", "48h")
	t.Setenv("SW_AUTH_REFRESH_TTL", "24h")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("got %v, want ErrConfig", err)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("SW_PASETO_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("SW_AUTH_ACCESS_TTL", "soon")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("got %v, want ErrConfig", err)
	}
}
