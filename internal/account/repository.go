package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/dentaportal/portal-api/internal/database"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrStaleToken is returned when a conditional token update matched no row:
	// the token was consumed or replaced concurrently, or it expired.
	ErrStaleToken      = errors.New("token no longer valid")
	ErrProfileNotFound = errors.New("dentist profile not found")
)

// Repository handles account and dentist profile persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an account and, for dentists, its profile in one transaction.
// The unique index on email is the authority for duplicate detection.
func (r *Repository) Create(ctx context.Context, acc *Account, profile *DentistProfile) error {
	dbAccount := mapModelToDBAccount(acc)

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(dbAccount).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("failed to insert account: %w", err)
		}

		if profile == nil {
			return nil
		}

		if _, err := tx.NewInsert().Model(mapModelToDBProfile(profile)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert dentist profile: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves an account by its normalized email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.getOne(ctx, "email = ?", NormalizeEmail(email))
}

// GetByVerificationToken retrieves the account holding the verification token hash
func (r *Repository) GetByVerificationToken(ctx context.Context, tokenHash string) (*Account, error) {
	return r.getOne(ctx, "email_verification_token_hash = ?", tokenHash)
}

// GetByResetToken retrieves the account holding the reset token hash
func (r *Repository) GetByResetToken(ctx context.Context, tokenHash string) (*Account, error) {
	return r.getOne(ctx, "password_reset_token_hash = ?", tokenHash)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*Account, error) {
	dbAccount := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAccount).
		Where(where, arg).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return mapDBAccountToModel(dbAccount), nil
}

// MarkEmailVerified flips email_verified and clears the verification token,
// but only if the token is still the current one and has not expired at now.
func (r *Repository) MarkEmailVerified(ctx context.Context, id uuid.UUID, tokenHash string, now time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("email_verified = ?", true).
		Set("email_verification_token_hash = NULL").
		Set("email_verification_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("email_verification_token_hash = ?", tokenHash).
		Where("email_verification_expires_at >= ?", now).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark email as verified: %w", err)
	}

	return expectOneRow(result, ErrStaleToken)
}

// ResetPassword replaces the password hash and clears the reset token under
// the same compare-and-swap condition as MarkEmailVerified.
func (r *Repository) ResetPassword(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string, now time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("password_reset_token_hash = NULL").
		Set("password_reset_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("password_reset_token_hash = ?", tokenHash).
		Where("password_reset_expires_at >= ?", now).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	return expectOneRow(result, ErrStaleToken)
}

// UpdateVerificationToken overwrites the verification token of an unverified account
func (r *Repository) UpdateVerificationToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("email_verification_token_hash = ?", tokenHash).
		Set("email_verification_expires_at = ?", expiresAt).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("email_verified = ?", false).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update verification token: %w", err)
	}

	return expectOneRow(result, ErrNotFound)
}

// UpdateResetToken overwrites the password reset token, invalidating any earlier one
func (r *Repository) UpdateResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("password_reset_token_hash = ?", tokenHash).
		Set("password_reset_expires_at = ?", expiresAt).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update reset token: %w", err)
	}

	return expectOneRow(result, ErrNotFound)
}

// GetDentistProfile retrieves the profile owned by an account
func (r *Repository) GetDentistProfile(ctx context.Context, accountID uuid.UUID) (*DentistProfile, error) {
	return r.getProfile(ctx, "account_id = ?", accountID)
}

// GetDentistProfileByID retrieves a profile by its own ID
func (r *Repository) GetDentistProfileByID(ctx context.Context, id uuid.UUID) (*DentistProfile, error) {
	return r.getProfile(ctx, "id = ?", id)
}

func (r *Repository) getProfile(ctx context.Context, where string, arg any) (*DentistProfile, error) {
	dbProfile := new(database.DentistProfile)
	err := r.db.NewSelect().
		Model(dbProfile).
		Where(where, arg).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get dentist profile: %w", err)
	}

	return mapDBProfileToModel(dbProfile), nil
}

// SetDentistVerified sets the administrator approval flag
func (r *Repository) SetDentistVerified(ctx context.Context, id uuid.UUID, verified bool) (*DentistProfile, error) {
	return r.updateProfileFlag(ctx, id, "is_verified", verified)
}

// SetDentistActive sets the active flag
func (r *Repository) SetDentistActive(ctx context.Context, id uuid.UUID, active bool) (*DentistProfile, error) {
	return r.updateProfileFlag(ctx, id, "is_active", active)
}

func (r *Repository) updateProfileFlag(ctx context.Context, id uuid.UUID, column string, value bool) (*DentistProfile, error) {
	result, err := r.db.NewUpdate().
		Model((*database.DentistProfile)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to update dentist profile %s: %w", column, err)
	}

	if err := expectOneRow(result, ErrProfileNotFound); err != nil {
		return nil, err
	}

	return r.GetDentistProfileByID(ctx, id)
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}

// isUniqueViolation recognises Postgres (23505) and SQLite unique constraint errors
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func mapModelToDBAccount(a *Account) *database.Account {
	return &database.Account{
		ID:                         a.ID,
		Email:                      NormalizeEmail(a.Email),
		PasswordHash:               a.PasswordHash,
		FirstName:                  a.FirstName,
		LastName:                   a.LastName,
		Phone:                      a.Phone,
		Role:                       string(a.Role),
		EmailVerified:              a.EmailVerified,
		EmailVerificationTokenHash: a.EmailVerificationTokenHash,
		EmailVerificationExpiresAt: a.EmailVerificationExpiresAt,
		PasswordResetTokenHash:     a.PasswordResetTokenHash,
		PasswordResetExpiresAt:     a.PasswordResetExpiresAt,
		CreatedAt:                  a.CreatedAt,
		UpdatedAt:                  a.UpdatedAt,
	}
}

// mapDBAccountToModel converts database model to domain model
func mapDBAccountToModel(dba *database.Account) *Account {
	return &Account{
		ID:                         dba.ID,
		Email:                      dba.Email,
		PasswordHash:               dba.PasswordHash,
		FirstName:                  dba.FirstName,
		LastName:                   dba.LastName,
		Phone:                      dba.Phone,
		Role:                       Role(dba.Role),
		EmailVerified:              dba.EmailVerified,
		EmailVerificationTokenHash: dba.EmailVerificationTokenHash,
		EmailVerificationExpiresAt: dba.EmailVerificationExpiresAt,
		PasswordResetTokenHash:     dba.PasswordResetTokenHash,
		PasswordResetExpiresAt:     dba.PasswordResetExpiresAt,
		CreatedAt:                  dba.CreatedAt,
		UpdatedAt:                  dba.UpdatedAt,
	}
}

func mapModelToDBProfile(p *DentistProfile) *database.DentistProfile {
	return &database.DentistProfile{
		ID:            p.ID,
		AccountID:     p.AccountID,
		IsVerified:    p.IsVerified,
		IsActive:      p.IsActive,
		LicenseNumber: p.LicenseNumber,
		Location:      p.Location,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func mapDBProfileToModel(dbp *database.DentistProfile) *DentistProfile {
	return &DentistProfile{
		ID:            dbp.ID,
		AccountID:     dbp.AccountID,
		IsVerified:    dbp.IsVerified,
		IsActive:      dbp.IsActive,
		LicenseNumber: dbp.LicenseNumber,
		Location:      dbp.Location,
		CreatedAt:     dbp.CreatedAt,
		UpdatedAt:     dbp.UpdatedAt,
	}
}
