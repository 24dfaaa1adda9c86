package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/httputil"
	"github.com/dentaportal/portal-api/internal/logging"
	"github.com/dentaportal/portal-api/internal/monitoring"
)

const (
	purposeRegister           = "register"
	purposeLogin              = "login"
	purposeResendVerification = "resend_verification"
	purposeForgotPassword     = "forgot_password"
	purposeResetPassword      = "reset_password"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service      *Service
	rateLimiter  RateLimiter
	isProduction bool
}

func NewHandler(service *Service, rateLimiter RateLimiter, isProduction bool) *Handler {
	return &Handler{
		service:      service,
		rateLimiter:  rateLimiter,
		isProduction: isProduction,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse omits the token for browser clients, which receive it as a cookie
type LoginResponse struct {
	Account   account.PublicAccount `json:"account"`
	Token     string                `json:"token,omitempty"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// AccountResponse wraps a single account with an optional message
type AccountResponse struct {
	Account account.PublicAccount `json:"account"`
	Message string                `json:"message,omitempty"`
}

// EmailRequest is the body of resend-verification and forgot-password
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// errorMapping ties a domain error to its HTTP status and machine code
type errorMapping struct {
	err    error
	status int
	code   string
}

var serviceErrors = []errorMapping{
	{ErrDuplicateAccount, http.StatusConflict, httputil.CodeEmailAlreadyExists},
	{ErrRoleNotAllowedToSignUp, http.StatusForbidden, httputil.CodeRoleNotAllowed},
	{ErrNotFound, http.StatusNotFound, httputil.CodeAccountNotFound},
	{ErrInvalidCredentials, http.StatusUnauthorized, httputil.CodeInvalidCredentials},
	{ErrEmailNotVerified, http.StatusForbidden, httputil.CodeEmailNotVerified},
	{ErrPendingApproval, http.StatusForbidden, httputil.CodePendingApproval},
	{ErrInvalidOrExpiredToken, http.StatusBadRequest, httputil.CodeInvalidOrExpiredToken},
	{ErrAlreadyVerified, http.StatusConflict, httputil.CodeEmailAlreadyVerified},
}

// respondServiceError writes the mapped reply for err, or a 500 for anything unmapped
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, op string, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		logger.Warn(op+" failed: validation error", "fields", validationErr.Fields)
		httputil.RespondValidationError(w, validationErr.Fields)
		return
	}

	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			logger.Warn(op+" failed", "code", m.code)
			httputil.RespondErrorWithCode(w, m.err.Error(), m.code, m.status)
			return
		}
	}

	logger.Error(op+" failed: internal error", "error", err.Error())
	monitoring.CaptureError(r.Context(), err)
	httputil.RespondErrorWithCode(w, "failed to "+op, httputil.CodeInternalError, http.StatusInternalServerError)
}

// Register handles account registration
// @Summary      Register a new account
// @Description  Create a DENTIST or PATIENT account. A verification email is sent; dentists additionally need administrator approval before they can log in.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration details"
// @Success      201 {object} RegisterResult
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      403 {object} httputil.ErrorResponse "Role cannot be registered publicly"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.ipLimited(w, r, logger, purposeRegister) {
		return
	}

	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": account.NormalizeEmail(req.Email)})

	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, logger, "register", err)
		return
	}

	logger.Info("account registered", "account_id", result.Account.ID, "warnings", len(result.Warnings))
	httputil.RespondJSON(w, result, http.StatusCreated)
}

// Login handles account login
// @Summary      Log in
// @Description  Authenticate with email and password. Browser clients receive the session token as an HttpOnly cookie; other clients receive it in the body.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} LoginResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      403 {object} httputil.ErrorResponse "Email not verified or pending approval"
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.ipLimited(w, r, logger, purposeLogin) {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": account.NormalizeEmail(req.Email)})

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, logger, "login", err)
		return
	}

	logger.Info("account logged in", "account_id", result.Account.ID, "role", result.Account.Role)

	resp := LoginResponse{Account: result.Account, ExpiresAt: result.ExpiresAt}
	if ShouldUseCookies(r) {
		SetSessionCookie(w, result.Token, result.ExpiresAt, h.isProduction)
	} else {
		resp.Token = result.Token
	}
	httputil.RespondJSON(w, resp, http.StatusOK)
}

// VerifyEmail handles email verification
// @Summary      Verify email address
// @Description  Consume the one-time token from the verification email
// @Tags         auth
// @Produce      json
// @Param        token query string true "Verification token"
// @Success      200 {object} AccountResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/verify-email [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	acc, err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		respondServiceError(w, r, logger, "verify email", err)
		return
	}

	logger.Info("email verified", "account_id", acc.ID)

	message := "Email verified successfully. You can now log in."
	if acc.Role == account.RoleDentist {
		message = "Email verified successfully. Your account is awaiting administrator approval."
	}
	httputil.RespondJSON(w, AccountResponse{Account: *acc, Message: message}, http.StatusOK)
}

// ResendVerification handles resending the verification email
// @Summary      Resend verification email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Account email"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Failure      409 {object} httputil.ErrorResponse "Email already verified"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/resend-verification [post]
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid resend verification request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if h.ipLimited(w, r, logger, purposeResendVerification) || h.emailOnCooldown(w, r, logger, purposeResendVerification, req.Email) {
		return
	}

	message, err := h.service.ResendVerification(r.Context(), req.Email)
	if err != nil {
		respondServiceError(w, r, logger, "resend verification", err)
		return
	}

	h.setCooldown(r, logger, purposeResendVerification, req.Email)
	httputil.RespondMessage(w, message, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request a password reset
// @Description  Always answers with the same message whether or not the account exists
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Account email"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if h.ipLimited(w, r, logger, purposeForgotPassword) || h.emailOnCooldown(w, r, logger, purposeForgotPassword, req.Email) {
		return
	}

	message, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		respondServiceError(w, r, logger, "request password reset", err)
		return
	}

	h.setCooldown(r, logger, purposeForgotPassword, req.Email)
	httputil.RespondMessage(w, message, http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Reset token and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token, or invalid password"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.ipLimited(w, r, logger, purposeResetPassword) {
		return
	}

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	message, err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		respondServiceError(w, r, logger, "reset password", err)
		return
	}

	httputil.RespondMessage(w, message, http.StatusOK)
}

// Me returns the authenticated account
// @Summary      Current account
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} account.PublicAccount
// @Failure      401 {object} httputil.ErrorResponse "Unauthenticated"
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Router       /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, principal Principal) {
	logger := logging.GetLoggerFromContext(r.Context())

	acc, err := h.service.Me(r.Context(), principal)
	if err != nil {
		respondServiceError(w, r, logger, "get account", err)
		return
	}

	httputil.RespondJSON(w, acc, http.StatusOK)
}

// Logout clears the session cookie. Bearer tokens stay valid until they expire.
// @Summary      Log out
// @Tags         auth
// @Produce      json
// @Success      200 {object} httputil.MessageResponse
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w, h.isProduction)
	httputil.RespondMessage(w, "logged out", http.StatusOK)
}

// ipLimited enforces the per-IP window for purpose. Limiter failures let the request through.
func (h *Handler) ipLimited(w http.ResponseWriter, r *http.Request, logger *logging.Logger, purpose string) bool {
	ip := getClientIP(r)

	allowed, err := h.rateLimiter.AllowIPRequestWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to apply IP rate limit", "purpose", purpose, "error", err.Error())
		return false
	}
	if !allowed {
		logger.Warn("IP rate limit exceeded", "purpose", purpose, "ip", ip)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return true
	}
	return false
}

func (h *Handler) emailOnCooldown(w http.ResponseWriter, r *http.Request, logger *logging.Logger, purpose, email string) bool {
	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), purpose, email)
	if err != nil {
		logger.Error("failed to check email cooldown", "purpose", purpose, "error", err.Error())
		return false
	}
	if onCooldown {
		logger.Warn("email on cooldown", "purpose", purpose)
		httputil.RespondErrorWithCode(w, "please wait before requesting another email", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return true
	}
	return false
}

func (h *Handler) setCooldown(r *http.Request, logger *logging.Logger, purpose, email string) {
	if err := h.rateLimiter.SetEmailCooldown(r.Context(), purpose, email); err != nil {
		logger.Error("failed to set email cooldown", "purpose", purpose, "error", err.Error())
	}
}

// getClientIP strips the port from RemoteAddr, which chi's RealIP middleware
// has already rewritten from proxy headers.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
