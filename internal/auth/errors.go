package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dentaportal/portal-api/internal/account"
)

var (
	ErrDuplicateAccount       = errors.New("an account with this email already exists")
	ErrNotFound               = errors.New("account not found")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrEmailNotVerified       = errors.New("email not verified, please check your inbox")
	ErrPendingApproval        = errors.New("account is pending administrator approval")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrAlreadyVerified        = errors.New("email already verified")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrForbidden              = errors.New("insufficient role")
	ErrRoleNotAllowedToSignUp = errors.New("role cannot be registered publicly")
)

// ForbiddenError names the roles an operation requires. It matches ErrForbidden
// with errors.Is.
type ForbiddenError struct {
	Role     account.Role
	Required []account.Role
}

func (e *ForbiddenError) Error() string {
	names := make([]string, len(e.Required))
	for i, r := range e.Required {
		names[i] = string(r)
	}
	return fmt.Sprintf("role %s is not permitted, requires one of: %s", e.Role, strings.Join(names, ", "))
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// ValidationError carries per-field input problems
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
