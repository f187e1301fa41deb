package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"parley/cmd/identity"
)

// UserStore is the read-only identity lookup consumed by the session
// subsystem. It is owned by the identity package; the session subsystem
// never mutates users.
type UserStore interface {
	UserAuthByUsername(ctx context.Context, username string) (identity.UserAuth, error)
	UserByUsername(ctx context.Context, username string) (identity.User, error)
	UserByID(ctx context.Context, id string) (identity.User, error)
}

// PasswordVerifier verifies a plaintext password against a stored hash.
// password.Config satisfies this interface.
type PasswordVerifier interface {
	Verify(encodedHash, password string) (bool, error)
}

// Issued is the result of a login or a refresh rotation.
// RefreshSecret is the raw one-time secret; it must go to the client
// (HTTP-only cookie) and must never be logged or persisted.
type Issued struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// Service implements the high-level session operations for Parley:
// login (issue), refresh (rotate), and per-request authentication.
//
// It holds no mutable state of its own; the refresh-token store is the
// sole point of coordination between concurrent requests.
type Service struct {
	cfg       Config
	users     UserStore
	passwords PasswordVerifier
	store     Store
	codec     *AccessTokenCodec

	// dummyHash absorbs a verify call when the username does not exist,
	// keeping login timing independent of user existence.
	dummyHash string
}

// ServiceOption configures optional Service behavior.
type ServiceOption func(*Service)

// WithTimingDummyHash sets the hash verified on unknown-user logins.
func WithTimingDummyHash(hash string) ServiceOption {
	return func(s *Service) {
		if s == nil || hash == "" {
			return
		}
		s.dummyHash = hash
	}
}

// NewService constructs a Service with the provided dependencies.
func NewService(cfg Config, users UserStore, passwords PasswordVerifier, store Store, codec *AccessTokenCodec, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:       cfg,
		users:     users,
		passwords: passwords,
		store:     store,
		codec:     codec,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Login verifies credentials and issues a fresh session.
//
// State machine: Unauthenticated -> CredentialsChecked -> SessionCreated.
// Every prior refresh credential of the user is revoked before the new one
// is created (single-active-session policy). Concurrent logins for the
// same user may both succeed; the later one displaces the earlier.
//
// Failures from missing users and wrong passwords are both
// ErrAuthenticationFailed, with a dummy hash verification on the missing
// path so the two are indistinguishable by timing as well.
func (s *Service) Login(ctx context.Context, now time.Time, username, password string) (Issued, error) {
	ua, err := s.users.UserAuthByUsername(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) {
			if s.dummyHash != "" {
				_, _ = s.passwords.Verify(s.dummyHash, password)
			}
			return Issued{}, ErrAuthenticationFailed
		}
		return Issued{}, err
	}

	ok, err := s.passwords.Verify(ua.PasswordHash, password)
	if err != nil || !ok {
		return Issued{}, ErrAuthenticationFailed
	}

	if err := s.store.RevokeAllForOwner(ctx, now, ua.User.ID); err != nil {
		return Issued{}, err
	}

	rec, secret, err := s.store.Create(ctx, now, ua.User.ID, s.cfg.RefreshTTL)
	if err != nil {
		return Issued{}, err
	}

	token, exp, err := s.codec.Issue(ua.User, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		AccessToken:      token,
		AccessExpiresAt:  exp,
		RefreshSecret:    secret,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Rotate exchanges a presented refresh secret for a new session.
//
// State machine: PresentedSecret -> Matched -> Rotated, or Rejected.
// The revoke step is a single conditional write; of two concurrent calls
// presenting the same secret, exactly one proceeds and the loser gets
// ErrSessionRejected. A revoked secret presented again is rejected but
// triggers no further revocation.
//
// The owner lookup happens before the rotation commits, so a committed
// rotation always produces a token.
func (s *Service) Rotate(ctx context.Context, now time.Time, rawSecret string) (Issued, error) {
	rawSecret = strings.TrimSpace(rawSecret)
	// Sanity bounds against pathological inputs.
	if rawSecret == "" || len(rawSecret) > 4096 {
		return Issued{}, ErrSessionRejected
	}

	rec, err := s.store.FindMatching(ctx, now, rawSecret)
	if err != nil {
		return Issued{}, err
	}
	if rec.Revoked || !rec.ExpiresAt.After(now) {
		return Issued{}, ErrSessionRejected
	}

	owner, err := s.users.UserByID(ctx, rec.OwnerID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Issued{}, ErrSessionRejected
		}
		return Issued{}, err
	}

	newRec, newSecret, err := s.store.Rotate(ctx, now, rec, s.cfg.RefreshTTL)
	if err != nil {
		return Issued{}, err
	}

	token, exp, err := s.codec.Issue(owner, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		AccessToken:      token,
		AccessExpiresAt:  exp,
		RefreshSecret:    newSecret,
		RefreshExpiresAt: newRec.ExpiresAt,
	}, nil
}

// Authenticate validates an access token and resolves its subject to a
// live user with a fresh lookup. Nothing beyond the username is trusted
// from the token's claims.
func (s *Service) Authenticate(ctx context.Context, now time.Time, token string) (identity.User, Claims, error) {
	claims, err := s.codec.Validate(token, now)
	if err != nil {
		return identity.User{}, Claims{}, ErrInvalidToken
	}

	user, err := s.users.UserByUsername(ctx, claims.Subject)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, Claims{}, ErrInvalidToken
		}
		return identity.User{}, Claims{}, err
	}

	return user, claims, nil
}

// RevokeSessions revokes every live refresh credential of the owner.
// Called when a credential change must invalidate outstanding sessions.
// Access tokens already in flight stay valid until their own expiry.
func (s *Service) RevokeSessions(ctx context.Context, now time.Time, ownerID string) error {
	return s.store.RevokeAllForOwner(ctx, now, ownerID)
}

// IsRetryable reports whether err is a transient store failure worth a
// caller-side retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
