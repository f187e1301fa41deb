package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"parley/cmd/identity"
)

// Claims is the identity envelope carried by a validated access token.
// Subject is the username; callers must re-resolve it against the user
// store rather than trusting any other claim for authorization.
type Claims struct {
	Subject   string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenCodec issues and validates short-lived HS256 access tokens.
//
// The signing key is injected at construction and never replaced; key
// rotation within a process run is not supported.
type AccessTokenCodec struct {
	issuer string
	ttl    time.Duration
	key    []byte
}

// NewAccessTokenCodec builds a codec from config.
func NewAccessTokenCodec(cfg Config) (*AccessTokenCodec, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, ErrConfig
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}
	return &AccessTokenCodec{
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		key:    cfg.SigningKey,
	}, nil
}

// Issue signs a new access token for user with expiry now + TTL.
func (c *AccessTokenCodec) Issue(user identity.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.ttl)

	claims := accessClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate verifies signature and expiry against the provided instant.
//
// Every failure maps to ErrInvalidToken: callers (and clients) cannot tell
// a bad signature from an expired or malformed token. Expiry is inclusive
// on the fail side (a token is invalid at exactly issuedAt + TTL).
func (c *AccessTokenCodec) Validate(token string, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims accessClaims
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject:   subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
