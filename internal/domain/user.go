package domain

import (
	"strings"
	"time"
)

// Role enumerates the account types of the platform.
type Role string

const (
	RoleBeneficiary Role = "beneficiary"
	RoleDonor       Role = "donor"
	RolePartner     Role = "partner"
	RoleAdmin       Role = "admin"
)

var allowedRoles = []Role{RoleBeneficiary, RoleDonor, RolePartner, RoleAdmin}

// AllowedRoles returns the roles accepted at registration.
func AllowedRoles() []Role {
	out := make([]Role, len(allowedRoles))
	copy(out, allowedRoles)
	return out
}

// ParseRole maps raw input onto the closed Role set.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range allowedRoles {
		if r == candidate {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r belongs to the allow-list.
func (r Role) Valid() bool {
	for _, allowed := range allowedRoles {
		if r == allowed {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an address; emails are the login key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// User is the credential record for every account.
//
// Token hash and expiry pairs are nil unless a request of that purpose is
// outstanding.
type User struct {
	ID                         string
	Name                       string
	Email                      string
	PasswordHash               string
	Role                       Role
	EmailVerified              bool
	EmailVerificationTokenHash *string
	EmailVerificationExpiresAt *time.Time
	ResetPasswordTokenHash     *string
	ResetPasswordExpiresAt     *time.Time
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// UserStats summarizes the account population.
type UserStats struct {
	TotalUsers    int64          `json:"totalUsers"`
	VerifiedUsers int64          `json:"verifiedUsers"`
	ByRole        map[Role]int64 `json:"byRole"`
}
