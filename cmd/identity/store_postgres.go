package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL (parley.users).
//
// The pgx pool is owned by the caller; this store must not close it.
// Schema identifiers are quoted to avoid injection via identifiers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the store (default "parley").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "parley"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	username := strings.TrimSpace(in.Username)
	if username == "" || strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username and password hash are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.users()+` (id, username, username_norm, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, username, NormalizeUsername(username), in.PasswordHash, RoleUser, now)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return User{ID: id, Username: username, Role: RoleUser, CreatedAt: now}, nil
}

// UserByUsername loads a user by normalized username.
func (s *PostgresStore) UserByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.UserByUsername"

	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, role, created_at
		FROM `+s.users()+`
		WHERE username_norm = $1
	`, NormalizeUsername(username)).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UserByID loads a user by ID.
func (s *PostgresStore) UserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.UserByID"

	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, role, created_at
		FROM `+s.users()+`
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UserAuthByUsername loads a user together with its stored password hash.
func (s *PostgresStore) UserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	const op = "identity.UserAuthByUsername"

	var ua UserAuth
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, role, created_at, password_hash
		FROM `+s.users()+`
		WHERE username_norm = $1
	`, NormalizeUsername(username)).Scan(
		&ua.User.ID, &ua.User.Username, &ua.User.Role, &ua.User.CreatedAt, &ua.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return UserAuth{}, fmt.Errorf("%s: %w", op, err)
	}
	return ua, nil
}

// UpdatePassword replaces the stored password hash for a user.
func (s *PostgresStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const op = "identity.UpdatePassword"

	if strings.TrimSpace(passwordHash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.users()+`
		SET password_hash = $2
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

// UsernameExists reports whether the normalized username is taken.
func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	const op = "identity.UsernameExists"

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM `+s.users()+` WHERE username_norm = $1)
	`, NormalizeUsername(username)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ListUsers returns all users ordered by creation time.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	const op = "identity.ListUsers"

	rows, err := s.pool.Query(ctx, `
		SELECT id, username, role, created_at
		FROM `+s.users()+`
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
