package identity

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	user, err := s.CreateUser(ctx, CreateUserInput{Username: "Mina", PasswordHash: "hash", Now: now})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if len(user.ID) != 26 {
		t.Fatalf("id = %q, want 26-char ulid", user.ID)
	}
	if user.Role != RoleUser {
		t.Fatalf("role = %q", user.Role)
	}
	// The display casing is preserved; lookups are case-insensitive.
	if user.Username != "Mina" {
		t.Fatalf("username = %q", user.Username)
	}

	got, err := s.UserByUsername(ctx, "  MINA ")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("got %s, want %s", got.ID, user.ID)
	}

	byID, err := s.UserByID(ctx, user.ID)
	if err != nil || byID.Username != "Mina" {
		t.Fatalf("UserByID: %+v, %v", byID, err)
	}

	ua, err := s.UserAuthByUsername(ctx, "mina")
	if err != nil || ua.PasswordHash != "hash" {
		t.Fatalf("UserAuthByUsername: %+v, %v", ua, err)
	}
}

func TestMemoryStore_Conflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.CreateUser(ctx, CreateUserInput{Username: "omar", PasswordHash: "h"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, CreateUserInput{Username: "OMAR", PasswordHash: "h"}); !IsConflict(err) {
		t.Fatalf("duplicate: err = %v, want conflict", err)
	}

	exists, err := s.UsernameExists(ctx, "Omar")
	if err != nil || !exists {
		t.Fatalf("exists = %v, err = %v", exists, err)
	}
}

func TestMemoryStore_NotFoundAndInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.UserByUsername(ctx, "ghost"); !IsNotFound(err) {
		t.Fatalf("missing user: err = %v", err)
	}
	if _, err := s.UserByID(ctx, "nope"); !IsNotFound(err) {
		t.Fatalf("missing id: err = %v", err)
	}
	if _, err := s.CreateUser(ctx, CreateUserInput{Username: "  ", PasswordHash: "h"}); !IsInvalidInput(err) {
		t.Fatalf("blank username: err = %v", err)
	}
}

func TestMemoryStore_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	user, err := s.CreateUser(ctx, CreateUserInput{Username: "mina", PasswordHash: "old-hash"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.UpdatePassword(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	ua, err := s.UserAuthByUsername(ctx, "mina")
	if err != nil || ua.PasswordHash != "new-hash" {
		t.Fatalf("UserAuthByUsername after update: %+v, %v", ua, err)
	}

	if err := s.UpdatePassword(ctx, "nope", "new-hash"); !IsNotFound(err) {
		t.Fatalf("missing id: err = %v", err)
	}
	if err := s.UpdatePassword(ctx, user.ID, ""); !IsInvalidInput(err) {
		t.Fatalf("blank hash: err = %v", err)
	}
}

func TestMemoryStore_ListUsersOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().UTC()

	for i, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := s.CreateUser(ctx, CreateUserInput{
			Username:     name,
			PasswordHash: "h",
			Now:          base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("CreateUser %s: %v", name, err)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len = %d", len(users))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if users[i].Username != want {
			t.Fatalf("users[%d] = %q, want %q", i, users[i].Username, want)
		}
	}
}

func TestNormalizeUsername(t *testing.T) {
	cases := map[string]string{
		"Mina":     "mina",
		"  Mina  ": "mina",
		"MINA":     "mina",
		"":         "",
		"  ":       "",
	}
	for in, want := range cases {
		if got := NormalizeUsername(in); got != want {
			t.Fatalf("NormalizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
}
