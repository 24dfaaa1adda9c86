package dentist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/auth"
	"github.com/dentaportal/portal-api/internal/logging"
)

var (
	ErrNotFound   = errors.New("dentist profile not found")
	ErrNotDentist = errors.New("account is not a dentist")
	ErrNotOwner   = errors.New("only the owning dentist or an administrator may access this profile")
)

// Store is the slice of the credential store that manages dentist profiles
type Store interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	GetDentistProfile(ctx context.Context, accountID uuid.UUID) (*account.DentistProfile, error)
	GetDentistProfileByID(ctx context.Context, id uuid.UUID) (*account.DentistProfile, error)
	SetDentistVerified(ctx context.Context, id uuid.UUID, verified bool) (*account.DentistProfile, error)
	SetDentistActive(ctx context.Context, id uuid.UUID, active bool) (*account.DentistProfile, error)
}

// Service owns the administrator approval gate and the active flag
type Service struct {
	store  Store
	logger *logging.Logger
}

func NewService(store Store, logger *logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// SetVerified flips the approval gate. Only administrators may call it.
func (s *Service) SetVerified(ctx context.Context, actor auth.Principal, profileID uuid.UUID, verified bool) (*account.DentistProfile, error) {
	if !actor.HasRole(account.RoleAdmin) {
		return nil, &auth.ForbiddenError{Role: actor.Role, Required: []account.Role{account.RoleAdmin}}
	}

	profile, err := s.store.SetDentistVerified(ctx, profileID, verified)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("dentist approval changed", "profile_id", profileID, "is_verified", verified, "admin_id", actor.AccountID)
	return profile, nil
}

// SetActive toggles the active flag for the owning dentist or an administrator
func (s *Service) SetActive(ctx context.Context, actor auth.Principal, profileID uuid.UUID, active bool) (*account.DentistProfile, error) {
	if _, err := s.authorizedProfile(ctx, actor, profileID); err != nil {
		return nil, err
	}

	profile, err := s.store.SetDentistActive(ctx, profileID, active)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("dentist active flag changed", "profile_id", profileID, "is_active", active, "actor_id", actor.AccountID)
	return profile, nil
}

// Get returns a profile to its owner or an administrator
func (s *Service) Get(ctx context.Context, actor auth.Principal, profileID uuid.UUID) (*account.DentistProfile, error) {
	return s.authorizedProfile(ctx, actor, profileID)
}

// SetVerifiedByEmail is the operator path used by the CLI, which runs without a session
func (s *Service) SetVerifiedByEmail(ctx context.Context, email string, verified bool) (*account.DentistProfile, error) {
	acc, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.Role != account.RoleDentist {
		return nil, ErrNotDentist
	}

	profile, err := s.store.GetDentistProfile(ctx, acc.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	profile, err = s.store.SetDentistVerified(ctx, profile.ID, verified)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("dentist approval changed by operator", "profile_id", profile.ID, "email", acc.Email, "is_verified", verified)
	return profile, nil
}

func (s *Service) authorizedProfile(ctx context.Context, actor auth.Principal, profileID uuid.UUID) (*account.DentistProfile, error) {
	profile, err := s.store.GetDentistProfileByID(ctx, profileID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	if actor.HasRole(account.RoleAdmin) {
		return profile, nil
	}
	if actor.HasRole(account.RoleDentist) && profile.AccountID == actor.AccountID {
		return profile, nil
	}

	return nil, ErrNotOwner
}

func mapStoreError(err error) error {
	if errors.Is(err, account.ErrProfileNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("dentist profile store: %w", err)
}
