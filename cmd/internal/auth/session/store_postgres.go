package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"parley/cmd/identity"
)

// PostgresStore implements Store using PostgreSQL (parley.refresh_tokens).
type PostgresStore struct {
	pool        *pgxpool.Pool
	schema      string
	hashCost    int
	secretBytes int
	ioTimeout   time.Duration
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default "parley").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("session: empty schema")
		}
		s.schema = schema
		return nil
	}
}

// WithIOTimeout bounds each store call (default 5s). Timeouts surface as
// ErrStoreUnavailable and are retryable by the caller.
func WithIOTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) error {
		if d <= 0 {
			return fmt.Errorf("session: io timeout must be positive")
		}
		s.ioTimeout = d
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed refresh-token store.
func NewPostgresStore(pool *pgxpool.Pool, cfg Config, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	st := &PostgresStore{
		pool:        pool,
		schema:      "parley",
		hashCost:    bcrypt.DefaultCost,
		secretBytes: cfg.RefreshSecretBytes,
		ioTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_tokens"}.Sanitize()
}

func (s *PostgresStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.ioTimeout)
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// Create inserts a new record and returns it with the one-time raw secret.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, ownerID string, ttl time.Duration) (Record, string, error) {
	const op = "session.Create"

	secret, err := newRefreshSecret(s.secretBytes)
	if err != nil {
		return Record{}, "", fmt.Errorf("%s: %w", op, err)
	}
	hash, err := hashRefreshSecret(secret, s.hashCost)
	if err != nil {
		return Record{}, "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Record{}, "", fmt.Errorf("%s: %w", op, err)
	}

	rec := Record{
		ID:         id,
		OwnerID:    ownerID,
		SecretHash: hash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (id, owner_id, secret_hash, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, false)
	`, rec.ID, rec.OwnerID, rec.SecretHash, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return Record{}, "", storeFailure(op, err)
	}

	return rec, secret, nil
}

// FindMatching scans live records and bcrypt-verifies each against rawSecret.
func (s *PostgresStore) FindMatching(ctx context.Context, now time.Time, rawSecret string) (Record, error) {
	const op = "session.FindMatching"

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, secret_hash, created_at, expires_at, revoked
		FROM `+s.table()+`
		WHERE revoked = false AND expires_at > $1
	`, now)
	if err != nil {
		return Record{}, storeFailure(op, err)
	}
	defer rows.Close()

	// Buffer the live set first so the connection is released before the
	// bcrypt comparisons run.
	var live []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.SecretHash, &rec.CreatedAt, &rec.ExpiresAt, &rec.Revoked); err != nil {
			return Record{}, storeFailure(op, err)
		}
		live = append(live, rec)
	}
	if err := rows.Err(); err != nil {
		return Record{}, storeFailure(op, err)
	}
	rows.Close()

	compared := 0
	for _, rec := range live {
		compared++
		if refreshSecretMatches(rec.SecretHash, rawSecret) {
			observeRefreshScan(len(live), compared)
			return rec, nil
		}
	}

	observeRefreshScan(len(live), compared)
	return Record{}, ErrSessionRejected
}

// MarkRevoked flips revoked only if still false.
func (s *PostgresStore) MarkRevoked(ctx context.Context, now time.Time, recordID string) error {
	const op = "session.MarkRevoked"

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked = true
		WHERE id = $1 AND revoked = false
	`, recordID)
	if err != nil {
		return storeFailure(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionRejected
	}
	return nil
}

// Rotate revokes old and inserts its replacement in one transaction.
// If the conditional revoke loses a concurrent race, the transaction is
// rolled back and ErrSessionRejected is returned.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, old Record, ttl time.Duration) (Record, string, error) {
	const op = "session.Rotate"

	secret, err := newRefreshSecret(s.secretBytes)
	if err != nil {
		return Record{}, "", fmt.Errorf("%s: %w", op, err)
	}
	hash, err := hashRefreshSecret(secret, s.hashCost)
	if err != nil {
		return Record{}, "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Record{}, "", fmt.Errorf("%s: %w", op, err)
	}

	rec := Record{
		ID:         id,
		OwnerID:    old.OwnerID,
		SecretHash: hash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, "", storeFailure(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked = true
		WHERE id = $1 AND revoked = false
	`, old.ID)
	if err != nil {
		return Record{}, "", storeFailure(op, err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to a concurrent rotation; fail closed.
		return Record{}, "", ErrSessionRejected
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO `+s.table()+` (id, owner_id, secret_hash, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, false)
	`, rec.ID, rec.OwnerID, rec.SecretHash, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return Record{}, "", storeFailure(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, "", storeFailure(op, err)
	}

	return rec, secret, nil
}

// RevokeAllForOwner revokes every live record of ownerID in one statement.
func (s *PostgresStore) RevokeAllForOwner(ctx context.Context, now time.Time, ownerID string) error {
	const op = "session.RevokeAllForOwner"

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked = true
		WHERE owner_id = $1 AND revoked = false
	`, ownerID)
	if err != nil {
		return storeFailure(op, err)
	}
	return nil
}
