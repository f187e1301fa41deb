package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development mode and tests.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*memUser // keyed by normalized username
	byID  map[string]*memUser
}

type memUser struct {
	user User
	hash string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*memUser),
		byID:  make(map[string]*memUser),
	}
}

// CreateUser persists a new user.
func (s *MemoryStore) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	username := in.Username
	norm := NormalizeUsername(username)
	if norm == "" || in.PasswordHash == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username and password hash are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[norm]; taken {
		return User{}, ConflictError{Op: op, Field: "username"}
	}

	u := &memUser{
		user: User{ID: id, Username: username, Role: RoleUser, CreatedAt: now},
		hash: in.PasswordHash,
	}
	s.users[norm] = u
	s.byID[id] = u
	return u.user, nil
}

// UserByUsername loads a user by normalized username.
func (s *MemoryStore) UserByUsername(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[NormalizeUsername(username)]
	if !ok {
		return User{}, OpError{Op: "identity.UserByUsername", Kind: ErrNotFound}
	}
	return u.user, nil
}

// UserByID loads a user by ID.
func (s *MemoryStore) UserByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, OpError{Op: "identity.UserByID", Kind: ErrNotFound}
	}
	return u.user, nil
}

// UserAuthByUsername loads a user together with its stored password hash.
func (s *MemoryStore) UserAuthByUsername(_ context.Context, username string) (UserAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[NormalizeUsername(username)]
	if !ok {
		return UserAuth{}, OpError{Op: "identity.UserAuthByUsername", Kind: ErrNotFound}
	}
	return UserAuth{User: u.user, PasswordHash: u.hash}, nil
}

// UpdatePassword replaces the stored password hash for a user.
func (s *MemoryStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	const op = "identity.UpdatePassword"

	if passwordHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	u.hash = passwordHash
	return nil
}

// UsernameExists reports whether the normalized username is taken.
func (s *MemoryStore) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.users[NormalizeUsername(username)]
	return ok, nil
}

// ListUsers returns all users ordered by creation time.
func (s *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u.user)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
