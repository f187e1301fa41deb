package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"parley/cmd/identity"
)

// MemoryStore is an in-memory Store for development mode and tests.
//
// The mutex plays the role of the database transaction: MarkRevoked and
// Rotate run their check-and-set under a single critical section, so two
// rotations of the same record cannot both win.
type MemoryStore struct {
	mu          sync.Mutex
	records     []*Record // scan order is insertion order
	byID        map[string]*Record
	hashCost    int
	secretBytes int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(cfg Config) *MemoryStore {
	n := cfg.RefreshSecretBytes
	if n < 32 {
		n = 32
	}
	return &MemoryStore{
		byID:        make(map[string]*Record),
		hashCost:    bcrypt.DefaultCost,
		secretBytes: n,
	}
}

// Create persists a new record and returns it with the one-time raw secret.
func (s *MemoryStore) Create(_ context.Context, now time.Time, ownerID string, ttl time.Duration) (Record, string, error) {
	secret, err := newRefreshSecret(s.secretBytes)
	if err != nil {
		return Record{}, "", err
	}
	hash, err := hashRefreshSecret(secret, s.hashCost)
	if err != nil {
		return Record{}, "", err
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Record{}, "", err
	}

	rec := &Record{
		ID:         id,
		OwnerID:    ownerID,
		SecretHash: hash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.byID[id] = rec
	s.mu.Unlock()

	return *rec, secret, nil
}

// FindMatching scans live records and bcrypt-verifies each against rawSecret.
//
// The bcrypt comparisons run outside the lock against a snapshot; the
// caller re-checks record state (and MarkRevoked/Rotate re-check under the
// lock), so a record revoked mid-scan still fails closed.
func (s *MemoryStore) FindMatching(_ context.Context, now time.Time, rawSecret string) (Record, error) {
	s.mu.Lock()
	live := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.Revoked && rec.ExpiresAt.After(now) {
			live = append(live, *rec)
		}
	}
	s.mu.Unlock()

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
func (s *MemoryStore) MarkRevoked(_ context.Context, _ time.Time, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[recordID]
	if !ok || rec.Revoked {
		return ErrSessionRejected
	}
	rec.Revoked = true
	return nil
}

// Rotate revokes old and creates its replacement under one critical section.
func (s *MemoryStore) Rotate(_ context.Context, now time.Time, old Record, ttl time.Duration) (Record, string, error) {
	secret, err := newRefreshSecret(s.secretBytes)
	if err != nil {
		return Record{}, "", err
	}
	hash, err := hashRefreshSecret(secret, s.hashCost)
	if err != nil {
		return Record{}, "", err
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Record{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[old.ID]
	if !ok || prev.Revoked {
		// Lost the race to a concurrent rotation; fail closed.
		return Record{}, "", ErrSessionRejected
	}
	prev.Revoked = true

	rec := &Record{
		ID:         id,
		OwnerID:    old.OwnerID,
		SecretHash: hash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	s.records = append(s.records, rec)
	s.byID[id] = rec

	return *rec, secret, nil
}

// RevokeAllForOwner revokes every live record of ownerID.
func (s *MemoryStore) RevokeAllForOwner(_ context.Context, _ time.Time, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			rec.Revoked = true
		}
	}
	return nil
}
