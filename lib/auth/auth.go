// Package auth provides password hash verification for the inventory server.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// IVerifier checks a clear text password against a stored hash.
type IVerifier interface {
	// Verify returns true if password matches storedHash.
	// An empty storedHash (unknown user) never matches but costs the same time as a real check.
	Verify(storedHash, password string) bool
}

// dummyHash is compared against when no stored hash exists, so that unknown and known
// usernames cannot be told apart by response time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type bcryptVerifier struct{}

// NewBcryptVerifier returns a verifier for bcrypt hashes ($2a$, $2b$, $2y$).
func NewBcryptVerifier() IVerifier {
	return bcryptVerifier{}
}

func (bcryptVerifier) Verify(storedHash, password string) bool {
	if storedHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// HashPassword creates a bcrypt hash of password. A cost of 0 selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
