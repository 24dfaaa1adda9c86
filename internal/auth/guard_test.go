package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentaportal/portal-api/internal/account"
)

func newGuardEnv(t *testing.T) (*Guard, *memoryStore, TokenService) {
	t.Helper()
	tokens, err := NewPasetoService([]byte(testPasetoKey), "portal-test")
	require.NoError(t, err)
	store := newMemoryStore()
	return NewGuard(tokens, store), store, tokens
}

func seedAccount(t *testing.T, store *memoryStore, role account.Role) *account.Account {
	t.Helper()
	acc := &account.Account{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Role: role, EmailVerified: true}
	require.NoError(t, store.Create(context.Background(), acc, nil))
	return acc
}

func TestGuard_AuthorizeByRole(t *testing.T) {
	guard, store, tokens := newGuardEnv(t)
	ctx := context.Background()

	dentist := seedAccount(t, store, account.RoleDentist)
	token, _, err := tokens.CreateToken(dentist.ID, dentist.Role, time.Hour)
	require.NoError(t, err)

	principal, err := guard.Authorize(ctx, token, AnyAuthenticated)
	require.NoError(t, err)
	assert.Equal(t, dentist.ID, principal.AccountID)
	assert.Equal(t, account.RoleDentist, principal.Role)

	_, err = guard.Authorize(ctx, token, RequireRoles(account.RoleDentist, account.RoleAdmin))
	assert.NoError(t, err)

	_, err = guard.Authorize(ctx, token, RequireRoles(account.RoleAdmin))
	assert.ErrorIs(t, err, ErrForbidden)

	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Contains(t, forbidden.Error(), "ADMIN")
	assert.Equal(t, account.RoleDentist, forbidden.Role)
}

func TestGuard_Unauthenticated(t *testing.T) {
	guard, store, tokens := newGuardEnv(t)
	ctx := context.Background()

	_, err := guard.Authorize(ctx, "", AnyAuthenticated)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = guard.Authorize(ctx, "not-a-token", AnyAuthenticated)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrInvalidToken)

	patient := seedAccount(t, store, account.RolePatient)
	expired, _, err := tokens.CreateToken(patient.ID, patient.Role, -time.Second)
	require.NoError(t, err)
	_, err = guard.Authorize(ctx, expired, AnyAuthenticated)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestGuard_ReResolvesAccount(t *testing.T) {
	guard, store, tokens := newGuardEnv(t)
	ctx := context.Background()

	deleted, _, err := tokens.CreateToken(uuid.New(), account.RolePatient, time.Hour)
	require.NoError(t, err)
	_, err = guard.Authorize(ctx, deleted, AnyAuthenticated)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	patient := seedAccount(t, store, account.RolePatient)
	forged, _, err := tokens.CreateToken(patient.ID, account.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = guard.Authorize(ctx, forged, RequireRoles(account.RoleAdmin))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestGuard_WithoutStoreTrustsClaim(t *testing.T) {
	tokens, err := NewPasetoService([]byte(testPasetoKey), "portal-test")
	require.NoError(t, err)
	guard := NewGuard(tokens, nil)

	id := uuid.New()
	token, _, err := tokens.CreateToken(id, account.RoleAdmin, time.Hour)
	require.NoError(t, err)

	principal, err := guard.Authorize(context.Background(), token, RequireRoles(account.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, id, principal.AccountID)
}

func TestPrincipal_HasRole(t *testing.T) {
	p := Principal{Role: account.RolePatient}
	assert.True(t, p.HasRole(account.RolePatient, account.RoleAdmin))
	assert.False(t, p.HasRole(account.RoleAdmin))
	assert.False(t, p.HasRole())
}
