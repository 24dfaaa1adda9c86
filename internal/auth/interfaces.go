package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/email"
)

// TokenService defines the interface for session token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(accountID uuid.UUID, role account.Role, duration time.Duration) (string, time.Time, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// AccountStore is the credential store the lifecycle manager and guard depend on.
// Token consuming methods must be conditional updates that fail with
// account.ErrStaleToken when the token is no longer current.
type AccountStore interface {
	Create(ctx context.Context, acc *account.Account, profile *account.DentistProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	GetByVerificationToken(ctx context.Context, tokenHash string) (*account.Account, error)
	GetByResetToken(ctx context.Context, tokenHash string) (*account.Account, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID, tokenHash string, now time.Time) error
	ResetPassword(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string, now time.Time) error
	UpdateVerificationToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	UpdateResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetDentistProfile(ctx context.Context, accountID uuid.UUID) (*account.DentistProfile, error)
}

// Notifier delivers templated account emails. Failures are never fatal to the
// operation that triggered them.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, msg email.VerificationMessage) error
	SendWelcomeEmail(ctx context.Context, msg email.WelcomeMessage) error
	SendPasswordResetEmail(ctx context.Context, msg email.PasswordResetMessage) error
}

// RateLimiter throttles unauthenticated endpoints per client IP and per email address
type RateLimiter interface {
	AllowIPRequestWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	CheckEmailCooldown(ctx context.Context, purpose, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, purpose, email string) error
}
