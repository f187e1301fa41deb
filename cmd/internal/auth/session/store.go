package session

import (
	"context"
	"time"
)

// Record mirrors a parley.refresh_tokens row.
//
// Revoked is terminal: once true it never transitions back, and ExpiresAt
// is fixed at creation and never extended.
type Record struct {
	ID         string
	OwnerID    string
	SecretHash string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// Store abstracts persistence for refresh-token records.
//
// Implementations must make MarkRevoked a single conditional write so that
// concurrent rotations of the same record cannot both succeed.
type Store interface {
	// Create generates a fresh random secret, persists its hash with
	// revoked=false, and returns the record plus the raw secret. The raw
	// secret is recoverable from nowhere after this call returns.
	Create(ctx context.Context, now time.Time, ownerID string, ttl time.Duration) (Record, string, error)

	// FindMatching locates the record whose hash matches rawSecret.
	//
	// The secret hash is salted, so no index lookup is possible: the store
	// enumerates all non-revoked, non-expired records and verifies each.
	// Lookup cost is therefore proportional to the number of live sessions
	// system-wide. That is acceptable only because logins revoke all prior
	// records per owner, keeping the live set small; it is a known scaling
	// ceiling, surfaced via the parley_session_refresh_scan_* metrics.
	//
	// Returns ErrSessionRejected when nothing matches.
	FindMatching(ctx context.Context, now time.Time, rawSecret string) (Record, error)

	// MarkRevoked flips revoked to true only if it is still false.
	// Returns ErrSessionRejected if the record was already revoked or does
	// not exist (the caller lost a concurrent rotation race).
	MarkRevoked(ctx context.Context, now time.Time, recordID string) error

	// Rotate atomically revokes old (conditional, as MarkRevoked) and
	// creates the replacement record in the same transaction. If the
	// conditional revoke affects no row, nothing is created and
	// ErrSessionRejected is returned.
	Rotate(ctx context.Context, now time.Time, old Record, ttl time.Duration) (Record, string, error)

	// RevokeAllForOwner revokes every live record of ownerID in a single
	// statement. Used at login to enforce the single-active-session policy.
	RevokeAllForOwner(ctx context.Context, now time.Time, ownerID string) error
}
