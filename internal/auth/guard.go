package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dentaportal/portal-api/internal/account"
)

// Principal is the authenticated identity extracted from a validated session token
type Principal struct {
	AccountID uuid.UUID
	Role      account.Role
}

// HasRole reports whether the principal holds any of the given roles
func (p Principal) HasRole(roles ...account.Role) bool {
	return slices.Contains(roles, p.Role)
}

// Policy declares the roles an operation requires. An empty policy admits any
// authenticated principal.
type Policy struct {
	RequiredRoles []account.Role
}

// RequireRoles builds a policy admitting the given roles
func RequireRoles(roles ...account.Role) Policy {
	return Policy{RequiredRoles: roles}
}

// AnyAuthenticated admits every valid session
var AnyAuthenticated = Policy{}

// Guard validates session tokens and enforces role policies
type Guard struct {
	tokens TokenService
	store  AccountStore
}

// NewGuard creates a guard. When store is nil the signed claim is trusted as is;
// otherwise every call re-resolves the account to catch deleted accounts.
func NewGuard(tokens TokenService, store AccountStore) *Guard {
	return &Guard{tokens: tokens, store: store}
}

// Authorize validates the token and checks the claimed role against the policy
func (g *Guard) Authorize(ctx context.Context, token string, policy Policy) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}

	claims, err := g.tokens.VerifyToken(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	principal := Principal{AccountID: claims.AccountID, Role: claims.Role}

	if g.store != nil {
		acc, err := g.store.GetByID(ctx, claims.AccountID)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return Principal{}, ErrUnauthenticated
			}
			return Principal{}, fmt.Errorf("failed to resolve principal: %w", err)
		}
		if acc.Role != claims.Role {
			return Principal{}, ErrUnauthenticated
		}
	}

	if len(policy.RequiredRoles) > 0 && !principal.HasRole(policy.RequiredRoles...) {
		return Principal{}, &ForbiddenError{Role: principal.Role, Required: policy.RequiredRoles}
	}

	return principal, nil
}
