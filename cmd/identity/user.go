package identity

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Roles assigned to users. New users always start as RoleUser.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is Parley's canonical security principal.
// The password hash is deliberately not part of this struct; it only travels
// inside UserAuth on the login path.
type User struct {
	ID        string
	Username  string
	Role      string
	CreatedAt time.Time
}

// UserAuth carries the stored credential alongside the user.
// It must never be serialized into API responses or logs.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration request.
// Password must already be hashed by the caller.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser persists a new user. Returns a ConflictError if the
	// normalized username is already taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// UserByUsername loads a user by (normalized) username.
	UserByUsername(ctx context.Context, username string) (User, error)

	// UserByID loads a user by ID.
	UserByID(ctx context.Context, id string) (User, error)

	// UserAuthByUsername loads a user together with its password hash.
	// Login path only.
	UserAuthByUsername(ctx context.Context, username string) (UserAuth, error)

	// UpdatePassword replaces the stored password hash for a user.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UsernameExists reports whether the normalized username is taken.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// ListUsers returns all users ordered by creation time.
	ListUsers(ctx context.Context) ([]User, error)
}

// NewULID returns a new ULID string (26 chars, lexicographically sortable).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
