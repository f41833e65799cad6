package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, refresh-credential lifetime, clock skew
// tolerance, the reuse-detection policy, and PASETO v4 signing keys.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of issued tokens.
	Issuer string

	// AccessTTL defines the lifetime of short-lived access tokens.
	AccessTTL time.Duration

	// RefreshTTL defines the lifetime of long-lived refresh credentials.
	RefreshTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RevokeChainOnReuse controls whether a detected refresh reuse revokes the
	// owner's entire rotation chain. Defensive default: on.
	RevokeChainOnReuse bool

	// PasetoSecretKeyHex is the hex-encoded Ed25519 secret key used to sign
	// PASETO v4.public tokens.
	PasetoSecretKeyHex string
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:             "sparkwave",
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         30 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RevokeChainOnReuse: true,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - SW_PASETO_SECRET_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - SW_AUTH_ISSUER
//   - SW_AUTH_ACCESS_TTL
//   - SW_AUTH_REFRESH_TTL
//   - SW_AUTH_CLOCK_SKEW
//   - SW_AUTH_REVOKE_CHAIN_ON_REUSE
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("SW_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("SW_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("SW_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("SW_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("SW_AUTH_REVOKE_CHAIN_ON_REUSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.RevokeChainOnReuse = b
	}

	cfg.PasetoSecretKeyHex = os.Getenv("SW_PASETO_SECRET_KEY_HEX")
	if cfg.PasetoSecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	// Invariant: an access token must expire well before its paired refresh.
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
