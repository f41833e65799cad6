package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax    int
	LoginIPWindow time.Duration

	// Web cookie transport for the refresh credential. The cookie is
	// path-scoped to the refresh endpoint so it never rides along on other
	// requests, and a CSRF double-submit pair protects the endpoint itself.
	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:   envBool("SW_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("SW_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB

		LoginIPMax:    envInt("SW_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow: envDuration("SW_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),

		WebRefreshCookieEnabled: envBool("SW_AUTH_WEB_COOKIE", true),
		RefreshCookieName:       envString("SW_AUTH_REFRESH_COOKIE_NAME", "sw_refresh"),
		CSRFCookieName:          envString("SW_AUTH_CSRF_COOKIE_NAME", "sw_csrf"),
		CSRFHeaderName:          envString("SW_AUTH_CSRF_HEADER_NAME", "X-CSRF-Token"),
		CookiePath:              envString("SW_AUTH_COOKIE_PATH", "/auth/refresh"),
		CookieDomain:            os.Getenv("SW_AUTH_COOKIE_DOMAIN"),
		CookieSecure:            envBool("SW_AUTH_COOKIE_SECURE", true),
		CookieSameSite:          parseSameSite(os.Getenv("SW_AUTH_COOKIE_SAMESITE")),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginIPMax <= 0 {
		cfg.LoginIPMax = 20
	}

	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "", "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteStrictMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
