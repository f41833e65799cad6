package app

import (
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// MigrateOnStart applies embedded schema migrations before serving.
	MigrateOnStart bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, SW_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh-credential
	// hashing must be HMAC-based.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// DevSeed provisions a demo login in the in-memory directory. It has no
	// effect when a database is configured.
	DevSeed         bool
	DevSeedEmail    string
	DevSeedPassword string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("SW_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SW_LOG_LEVEL", "info"),
		LogFormat: EnvString("SW_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("SW_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SW_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SW_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SW_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SW_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("SW_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("SW_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SW_DB_MIN_CONNS", 0),

		MigrateOnStart: EnvBool("SW_DB_MIGRATE", true),

		ReadinessRequireDB: EnvBool("SW_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("SW_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   envStringList("SW_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("SW_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("SW_CORS_MAX_AGE_SECONDS", 600),

		DevSeed:         EnvBool("SW_DEV_SEED", false),
		DevSeedEmail:    EnvString("SW_DEV_SEED_EMAIL", "demo@sparkwave.local"),
		DevSeedPassword: EnvString("SW_DEV_SEED_PASSWORD", "sparkwave-dev"),
	}
}

func envStringList(key string) []string {
	raw := EnvString(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
