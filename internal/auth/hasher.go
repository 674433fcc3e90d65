package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordBytes = 8
	// bcrypt only looks at the first 72 bytes and x/crypto rejects longer input.
	maxPasswordBytes = 72
)

var (
	ErrWeakPassword    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes long")
)

// SecretHasher turns a plaintext secret into a digest that is safe to store.
type SecretHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// ValidatePassword enforces the password strength policy.
func ValidatePassword(plain string) error {
	if len(plain) < minPasswordBytes {
		return ErrWeakPassword
	}
	if len(plain) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// BcryptHasher hashes passwords with a configurable cost.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher clamps cost into the range bcrypt accepts.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash hashes a plaintext password.
func (h BcryptHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain matches the stored bcrypt digest.
func (h BcryptHasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// TokenHasher digests opaque tokens with SHA-256. Tokens already carry full
// entropy, so a fast deterministic hash lets the store index by digest.
type TokenHasher struct{}

// Hash returns the hex SHA-256 digest of the token.
func (TokenHasher) Hash(plain string) (string, error) {
	return HashToken(plain), nil
}

// Verify compares digests in constant time.
func (TokenHasher) Verify(plain, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(plain)), []byte(digest)) == 1
}

// HashToken is the lookup key for a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
