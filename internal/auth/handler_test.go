package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/httputil"
	"github.com/dentaportal/portal-api/internal/logging"
)

type handlerEnv struct {
	*testEnv
	handler    *Handler
	limiter    *stubLimiter
	middleware *Middleware
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	env := newTestEnv(t)
	limiter := &stubLimiter{}
	return &handlerEnv{
		testEnv:    env,
		handler:    NewHandler(env.svc, limiter, false),
		limiter:    limiter,
		middleware: NewMiddleware(NewGuard(env.tokens, env.store)),
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	env := newHandlerEnv(t)

	rec := httptest.NewRecorder()
	env.handler.Register(rec, jsonRequest(t, http.MethodPost, "/auth/register", patientInput("web@example.com")))
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg RegisterResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reg))
	assert.Equal(t, "web@example.com", reg.Account.Email)
	assert.NotContains(t, rec.Body.String(), "argon2id")

	rec = httptest.NewRecorder()
	env.handler.Login(rec, jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "web@example.com", Password: "correct-horse"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodeEmailNotVerified, decodeError(t, rec).Code)

	rec = httptest.NewRecorder()
	env.handler.VerifyEmail(rec, httptest.NewRequest(http.MethodGet, "/auth/verify-email?token="+env.lastVerificationToken(t), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.Login(rec, jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "web@example.com", Password: "correct-horse"}))
	require.Equal(t, http.StatusOK, rec.Code)

	var login LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.NotEmpty(t, login.Token)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, []string{purposeRegister, purposeLogin, purposeLogin}, env.limiter.recorded)
}

func TestHandler_LoginSetsCookieForBrowsers(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, patientInput("browser@example.com"))

	req := jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "browser@example.com", Password: "correct-horse"})
	req.Header.Set("X-Client-Type", "web")
	rec := httptest.NewRecorder()
	env.handler.Login(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var login LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.Empty(t, login.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.middleware.Protect(AnyAuthenticated, env.handler.Me)(rec, meReq)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "browser@example.com")
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ErrDuplicateAccount, http.StatusConflict, httputil.CodeEmailAlreadyExists},
		{ErrNotFound, http.StatusNotFound, httputil.CodeAccountNotFound},
		{ErrInvalidCredentials, http.StatusUnauthorized, httputil.CodeInvalidCredentials},
		{ErrEmailNotVerified, http.StatusForbidden, httputil.CodeEmailNotVerified},
		{ErrPendingApproval, http.StatusForbidden, httputil.CodePendingApproval},
		{ErrInvalidOrExpiredToken, http.StatusBadRequest, httputil.CodeInvalidOrExpiredToken},
		{ErrAlreadyVerified, http.StatusConflict, httputil.CodeEmailAlreadyVerified},
		{ErrRoleNotAllowedToSignUp, http.StatusForbidden, httputil.CodeRoleNotAllowed},
		{&ValidationError{Fields: map[string]string{"email": "bad"}}, http.StatusBadRequest, httputil.CodeValidationFailed},
		{errors.New("database exploded"), http.StatusInternalServerError, httputil.CodeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), logging.Discard(), "test", tc.err)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.NotContains(t, body.Error, "exploded")
		})
	}
}

func TestHandler_DentistPendingApproval(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, dentistInput("dr.pending@example.com"))

	rec := httptest.NewRecorder()
	env.handler.Login(rec, jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "dr.pending@example.com", Password: "correct-horse"}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodePendingApproval, decodeError(t, rec).Code)
}

func TestHandler_ForgotPasswordAlwaysSucceeds(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, patientInput("known@example.com"))

	var bodies []string
	for _, addr := range []string{"known@example.com", "unknown@example.com"} {
		rec := httptest.NewRecorder()
		env.handler.ForgotPassword(rec, jsonRequest(t, http.MethodPost, "/auth/forgot-password", EmailRequest{Email: addr}))
		assert.Equal(t, http.StatusOK, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}

	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, []string{purposeForgotPassword, purposeForgotPassword}, env.limiter.cooldowns)
}

func TestHandler_RateLimited(t *testing.T) {
	env := newHandlerEnv(t)
	env.limiter.ipExceeded = true

	rec := httptest.NewRecorder()
	env.handler.Login(rec, jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "x@example.com", Password: "pw"}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyRequests, decodeError(t, rec).Code)
}

func TestHandler_EmailCooldown(t *testing.T) {
	env := newHandlerEnv(t)
	env.limiter.cooldown = true

	rec := httptest.NewRecorder()
	env.handler.ResendVerification(rec, jsonRequest(t, http.MethodPost, "/auth/resend-verification", EmailRequest{Email: "x@example.com"}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandler_LimiterFailureFailsOpen(t *testing.T) {
	env := newHandlerEnv(t)
	env.limiter.err = errors.New("redis unavailable")

	rec := httptest.NewRecorder()
	env.handler.ForgotPassword(rec, jsonRequest(t, http.MethodPost, "/auth/forgot-password", EmailRequest{Email: "x@example.com"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_InvalidBody(t *testing.T) {
	env := newHandlerEnv(t)

	rec := httptest.NewRecorder()
	env.handler.Register(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidRequestBody, decodeError(t, rec).Code)
}

func TestHandler_ResetPassword(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerVerified(t, patientInput("r@example.com"))
	_, err := env.svc.ForgotPassword(context.Background(), "r@example.com")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	env.handler.ResetPassword(rec, jsonRequest(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: env.lastResetToken(t), NewPassword: "fresh-password"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ResetPassword(rec, jsonRequest(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: "bogus", NewPassword: "fresh-password"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidOrExpiredToken, decodeError(t, rec).Code)
}

func TestHandler_Logout(t *testing.T) {
	env := newHandlerEnv(t)

	rec := httptest.NewRecorder()
	env.handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestMiddleware_Protect(t *testing.T) {
	env := newHandlerEnv(t)
	patient := seedAccount(t, env.store, account.RolePatient)
	token, _, err := env.tokens.CreateToken(patient.ID, patient.Role, time.Hour)
	require.NoError(t, err)
	expired, _, err := env.tokens.CreateToken(patient.ID, patient.Role, -time.Minute)
	require.NoError(t, err)

	var got Principal
	next := func(w http.ResponseWriter, r *http.Request, p Principal) {
		got = p
		w.WriteHeader(http.StatusNoContent)
	}

	tests := []struct {
		name   string
		header string
		policy Policy
		status int
		code   string
	}{
		{"missing", "", AnyAuthenticated, http.StatusUnauthorized, httputil.CodeMissingAuth},
		{"malformed", "Token abc", AnyAuthenticated, http.StatusUnauthorized, httputil.CodeInvalidAuthHeader},
		{"garbage", "Bearer abc", AnyAuthenticated, http.StatusUnauthorized, httputil.CodeInvalidToken},
		{"expired", "Bearer " + expired, AnyAuthenticated, http.StatusUnauthorized, httputil.CodeTokenExpired},
		{"wrong role", "Bearer " + token, RequireRoles(account.RoleAdmin), http.StatusForbidden, httputil.CodeForbidden},
		{"ok", "Bearer " + token, RequireRoles(account.RolePatient), http.StatusNoContent, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			env.middleware.Protect(tc.policy, next)(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				body := decodeError(t, rec)
				assert.Equal(t, tc.code, body.Code)
				if tc.code == httputil.CodeForbidden {
					assert.Contains(t, body.Error, "ADMIN")
				}
			}
		})
	}

	assert.Equal(t, patient.ID, got.AccountID)
}
