package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

const opaqueTokenBytes = 32

var ErrMalformedToken = errors.New("malformed token")

// GenerateOpaqueToken returns 256 random bits, hex encoded so the token can be
// placed in a URL path or query without escaping.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CheckOpaqueToken rejects input that could never have been generated, so
// obviously bad links skip the store lookup.
func CheckOpaqueToken(raw string) error {
	if len(raw) != opaqueTokenBytes*2 {
		return ErrMalformedToken
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return ErrMalformedToken
	}
	return nil
}
