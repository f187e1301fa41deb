package session

import "errors"

var (
	// ErrAuthenticationFailed is returned for bad username/password pairs.
	// It is deliberately indistinguishable between "no such user" and
	// "wrong password" to avoid username enumeration.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidToken is returned when an access token fails validation.
	// Signature mismatch, malformed structure, and expiry all map here so
	// the failure mode cannot be used as an oracle.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionRejected is returned when a refresh secret is missing,
	// unmatched, revoked, expired, or lost a concurrent rotation race.
	ErrSessionRejected = errors.New("session rejected")

	// ErrStoreUnavailable is returned when persistence cannot be reached.
	// Callers may retry; the subsystem does not retry internally.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
