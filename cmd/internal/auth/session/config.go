package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines runtime configuration for the session subsystem.
//
// The signing key is loaded once at startup and held immutable for the
// process lifetime; it is never rotated within a run.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL defines the lifetime of refresh credentials. The expiry is
	// fixed at creation and never extended.
	RefreshTTL time.Duration

	// RefreshSecretBytes is the entropy of opaque refresh secrets.
	RefreshSecretBytes int

	// SigningKey is the symmetric HS256 key for access tokens.
	SigningKey []byte
}

// DefaultConfig returns defaults suitable for development.
// Production deployments must at least provide a signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:             "parley",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		RefreshSecretBytes: 32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - PARLEY_JWT_SECRET (min 32 bytes)
//
// Optional (durations are Go duration strings):
//   - PARLEY_AUTH_ISSUER
//   - PARLEY_AUTH_ACCESS_TTL
//   - PARLEY_AUTH_REFRESH_TTL
//   - PARLEY_AUTH_REFRESH_SECRET_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("PARLEY_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("PARLEY_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("PARLEY_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("PARLEY_AUTH_REFRESH_SECRET_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshSecretBytes = n
	}

	key := os.Getenv("PARLEY_JWT_SECRET")
	if len(key) < 32 {
		return Config{}, ErrConfig
	}
	cfg.SigningKey = []byte(key)

	// Access tokens must be strictly shorter-lived than refresh credentials.
	if cfg.AccessTokenTTL >= cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
