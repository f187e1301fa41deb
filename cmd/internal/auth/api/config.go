package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API transport behavior.
type Config struct {
	// RefreshCookieName is the cookie carrying the raw refresh secret.
	RefreshCookieName string
	// CookiePath scopes the refresh cookie so it is only sent to the
	// refresh endpoint.
	CookiePath   string
	CookieDomain string
	// CookieSecure should only be disabled for plain-HTTP local development.
	CookieSecure   bool
	CookieSameSite http.SameSite

	MaxBodyBytes int64
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults. The cookie defaults assume a cross-origin browser client,
// hence SameSite=None with Secure.
func LoadConfigFromEnv() Config {
	cfg := Config{
		RefreshCookieName: envString("PARLEY_AUTH_REFRESH_COOKIE_NAME", "refresh_token"),
		CookiePath:        envString("PARLEY_AUTH_COOKIE_PATH", "/auth/refresh"),
		CookieDomain:      envString("PARLEY_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("PARLEY_AUTH_COOKIE_SECURE", true),
		CookieSameSite:    http.SameSiteNoneMode,
		MaxBodyBytes:      envInt64("PARLEY_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}

	switch strings.ToLower(envString("PARLEY_AUTH_COOKIE_SAMESITE", "none")) {
	case "lax":
		cfg.CookieSameSite = http.SameSiteLaxMode
	case "strict":
		cfg.CookieSameSite = http.SameSiteStrictMode
	}

	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refresh_token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/auth/refresh"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return cfg
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
