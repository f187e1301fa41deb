package session

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// newRefreshSecret returns a URL-safe opaque secret with nBytes of entropy.
// The secret is handed to the client exactly once; only its bcrypt hash is
// ever persisted.
func newRefreshSecret(nBytes int) (string, error) {
	if nBytes < 32 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashRefreshSecret hashes a refresh secret for storage.
//
// bcrypt salts per hash, so the stored value is non-deterministic and cannot
// serve as a lookup index; see Store.FindMatching for the consequence.
func hashRefreshSecret(secret string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// refreshSecretMatches verifies a presented secret against a stored hash.
func refreshSecretMatches(storedHash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
}
