package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dentaportal/portal-api/internal/httputil"
	"github.com/dentaportal/portal-api/internal/logging"
)

// ProtectedHandlerFunc receives the already validated principal explicitly
type ProtectedHandlerFunc func(w http.ResponseWriter, r *http.Request, principal Principal)

// Middleware adapts the Guard to HTTP handlers
type Middleware struct {
	guard *Guard
}

func NewMiddleware(guard *Guard) *Middleware {
	return &Middleware{guard: guard}
}

// Protect authorizes the request against policy before invoking next
func (m *Middleware) Protect(policy Policy, next ProtectedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		token, ok := extractToken(r)
		if !ok {
			httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}
		if token == "" {
			httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		principal, err := m.guard.Authorize(r.Context(), token, policy)
		if err != nil {
			var forbidden *ForbiddenError
			switch {
			case errors.As(err, &forbidden):
				logger.Warn("access denied", "role", forbidden.Role, "required", forbidden.Required)
				httputil.RespondErrorWithCode(w, forbidden.Error(), httputil.CodeForbidden, http.StatusForbidden)
			case errors.Is(err, ErrExpiredToken):
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
			case errors.Is(err, ErrUnauthenticated):
				httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			default:
				logger.Error("authorization failed: internal error", "error", err.Error())
				httputil.RespondErrorWithCode(w, "failed to authorize request", httputil.CodeInternalError, http.StatusInternalServerError)
			}
			return
		}

		next(w, r, principal)
	}
}

// extractToken reads the bearer token, falling back to the session cookie.
// It returns false when an Authorization header is present but malformed.
func extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	token, err := GetSessionTokenFromCookie(r)
	if err != nil {
		return "", true
	}
	return token, true
}
