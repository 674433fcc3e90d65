package domain

import "time"

// TokenPurpose differentiates the two one-time token flows.
type TokenPurpose string

const (
	TokenPurposeReset       TokenPurpose = "reset"
	TokenPurposeVerifyEmail TokenPurpose = "verify-email"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	return p == TokenPurposeReset || p == TokenPurposeVerifyEmail
}

// Session represents an issued bearer token and its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// IssuedToken is the plaintext half of a token request. It only lives long
// enough to be embedded in an outgoing email.
type IssuedToken struct {
	Purpose   TokenPurpose
	UserID    string
	Email     string
	Raw       string
	ExpiresAt time.Time
}
