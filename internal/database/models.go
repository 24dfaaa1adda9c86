package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the bun model for the accounts table
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                         uuid.UUID  `bun:"id,pk,type:uuid"`
	Email                      string     `bun:"email,notnull,unique"`
	PasswordHash               string     `bun:"password_hash,notnull"`
	FirstName                  string     `bun:"first_name,notnull"`
	LastName                   string     `bun:"last_name,notnull"`
	Phone                      string     `bun:"phone,notnull,default:''"`
	Role                       string     `bun:"role,notnull"`
	EmailVerified              bool       `bun:"email_verified,notnull,default:false"`
	EmailVerificationTokenHash *string    `bun:"email_verification_token_hash"`
	EmailVerificationExpiresAt *time.Time `bun:"email_verification_expires_at"`
	PasswordResetTokenHash     *string    `bun:"password_reset_token_hash"`
	PasswordResetExpiresAt     *time.Time `bun:"password_reset_expires_at"`
	CreatedAt                  time.Time  `bun:"created_at,notnull"`
	UpdatedAt                  time.Time  `bun:"updated_at,notnull"`
}

// DentistProfile is the bun model for the dentist_profiles table
type DentistProfile struct {
	bun.BaseModel `bun:"table:dentist_profiles,alias:dp"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	AccountID     uuid.UUID `bun:"account_id,notnull,unique,type:uuid"`
	IsVerified    bool      `bun:"is_verified,notnull,default:false"`
	IsActive      bool      `bun:"is_active,notnull,default:true"`
	LicenseNumber string    `bun:"license_number,notnull,default:''"`
	Location      string    `bun:"location,notnull,default:''"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}
