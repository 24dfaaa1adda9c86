package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles an account can hold
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDentist Role = "DENTIST"
	RolePatient Role = "PATIENT"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDentist, RolePatient:
		return true
	default:
		return false
	}
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	return role, role.IsValid()
}

// AllRoles returns every role in a stable order
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleDentist, RolePatient}
}

type Account struct {
	ID                         uuid.UUID  `json:"id"`
	Email                      string     `json:"email"`
	PasswordHash               string     `json:"-"` // Never expose password hash in JSON
	FirstName                  string     `json:"first_name"`
	LastName                   string     `json:"last_name"`
	Phone                      string     `json:"phone,omitempty"`
	Role                       Role       `json:"role"`
	EmailVerified              bool       `json:"email_verified"`
	EmailVerificationTokenHash *string    `json:"-"`
	EmailVerificationExpiresAt *time.Time `json:"-"`
	PasswordResetTokenHash     *string    `json:"-"`
	PasswordResetExpiresAt     *time.Time `json:"-"`
	CreatedAt                  time.Time  `json:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// PublicAccount is the only projection of an Account that leaves the service
type PublicAccount struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Phone         string    `json:"phone,omitempty"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// VerificationTokenValid reports whether the stored verification token is
// still usable at now. Expiry is inclusive.
func (a *Account) VerificationTokenValid(now time.Time) bool {
	return tokenValid(a.EmailVerificationTokenHash, a.EmailVerificationExpiresAt, now)
}

// ResetTokenValid reports whether the stored reset token is still usable at now.
func (a *Account) ResetTokenValid(now time.Time) bool {
	return tokenValid(a.PasswordResetTokenHash, a.PasswordResetExpiresAt, now)
}

func tokenValid(hash *string, expiresAt *time.Time, now time.Time) bool {
	if hash == nil || *hash == "" || expiresAt == nil {
		return false
	}
	return !now.After(*expiresAt)
}

// DentistProfile is the 1:1 extension of a DENTIST account
type DentistProfile struct {
	ID            uuid.UUID `json:"id"`
	AccountID     uuid.UUID `json:"account_id"`
	IsVerified    bool      `json:"is_verified"`
	IsActive      bool      `json:"is_active"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Location      string    `json:"location,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanLogin combines both approval gates. Email verification applies to every
// role; the administrator gate applies to dentists only and requires a profile.
func CanLogin(a *Account, profile *DentistProfile) bool {
	if a == nil || !a.EmailVerified {
		return false
	}
	if a.Role != RoleDentist {
		return true
	}
	return profile != nil && profile.IsVerified
}

// NormalizeEmail returns the canonical form used for storage and lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
