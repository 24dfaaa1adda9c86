package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/email"
	"github.com/dentaportal/portal-api/internal/logging"
)

const (
	MessagePatientRegistered  = "Registration successful. Please check your email to verify your account."
	MessageDentistRegistered  = "Registration successful. Please verify your email address. Your account must also be approved by an administrator before you can log in."
	MessageVerificationResent = "A new verification email has been sent."
	MessagePasswordResetSent  = "If an account with that email exists, a password reset link has been sent."
	MessagePasswordReset      = "Your password has been reset. You can now log in with the new password."

	warningVerificationNotSent = "We could not send the verification email. Please request a new one."
)

// Config carries the lifecycle timings and link targets
type Config struct {
	SessionDuration    time.Duration
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	EmailTimeout       time.Duration
	FrontendURL        string
	DefaultPhoneRegion string
}

func (c Config) withDefaults() Config {
	if c.SessionDuration <= 0 {
		c.SessionDuration = 24 * time.Hour
	}
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = 24 * time.Hour
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = 15 * time.Minute
	}
	if c.EmailTimeout <= 0 {
		c.EmailTimeout = 30 * time.Second
	}
	if c.DefaultPhoneRegion == "" {
		c.DefaultPhoneRegion = "US"
	}
	return c
}

// RegisterResult is returned by a successful registration. Warnings lists
// non-fatal problems such as an undelivered verification email.
type RegisterResult struct {
	Account  account.PublicAccount `json:"account"`
	Message  string                `json:"message"`
	Warnings []string              `json:"warnings,omitempty"`
}

// LoginResult carries the issued session token
type LoginResult struct {
	Account   account.PublicAccount
	Token     string
	ExpiresAt time.Time
}

// Service implements the account lifecycle: registration, email verification,
// login gating and password recovery.
type Service struct {
	store    AccountStore
	hasher   *PasswordHasher
	tokens   TokenService
	notifier Notifier
	logger   *logging.Logger
	cfg      Config

	now      func() time.Time
	dispatch func(func())
	pending  sync.WaitGroup
}

func NewService(
	store AccountStore,
	hasher *PasswordHasher,
	tokens TokenService,
	notifier Notifier,
	logger *logging.Logger,
	cfg Config,
) *Service {
	s := &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	s.dispatch = func(fn func()) {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			fn()
		}()
	}
	return s
}

// Wait blocks until every background email has been attempted
func (s *Service) Wait() {
	s.pending.Wait()
}

// WaitContext is Wait bounded by ctx
func (s *Service) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background emails still pending: %w", ctx.Err())
	}
}

// Register creates a DENTIST or PATIENT account and sends the verification email.
// A delivery failure does not undo the registration; it is reported in Warnings.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Normalize(s.cfg.DefaultPhoneRegion)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	role, _ := account.ParseRole(in.Role)
	if role == account.RoleAdmin {
		return nil, ErrRoleNotAllowedToSignUp
	}

	acc, token, err := s.createAccount(ctx, in, role, false)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{Account: acc.Public(), Message: MessagePatientRegistered}
	if role == account.RoleDentist {
		result.Message = MessageDentistRegistered
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EmailTimeout)
	defer cancel()

	if err := s.notifier.SendVerificationEmail(sendCtx, s.verificationMessage(acc, token.Value)); err != nil {
		s.logger.Warn("failed to send verification email", "email", acc.Email, "error", err)
		result.Warnings = append(result.Warnings, warningVerificationNotSent)
	}

	s.logger.Info("account registered", "account_id", acc.ID, "email", acc.Email, "role", acc.Role)
	return result, nil
}

// CreateAdmin creates an ADMIN account whose email is already verified.
// It is reachable only from the operator CLI.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*account.PublicAccount, error) {
	in.Role = string(account.RoleAdmin)
	in.Normalize(s.cfg.DefaultPhoneRegion)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	acc, _, err := s.createAccount(ctx, in, account.RoleAdmin, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin account created", "account_id", acc.ID, "email", acc.Email)
	pub := acc.Public()
	return &pub, nil
}

func (s *Service) createAccount(ctx context.Context, in RegisterInput, role account.Role, preVerified bool) (*account.Account, *OneTimeToken, error) {
	// Advisory only: the unique index decides races between concurrent signups.
	if _, err := s.store.GetByEmail(ctx, in.Email); err == nil {
		return nil, nil, ErrDuplicateAccount
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	acc := &account.Account{
		ID:            uuid.New(),
		Email:         in.Email,
		PasswordHash:  passwordHash,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Phone:         in.Phone,
		Role:          role,
		EmailVerified: preVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var token *OneTimeToken
	if !preVerified {
		token, err = newOneTimeToken(now, s.cfg.VerificationTTL)
		if err != nil {
			return nil, nil, err
		}
		acc.EmailVerificationTokenHash = &token.Hash
		acc.EmailVerificationExpiresAt = &token.ExpiresAt
	}

	var profile *account.DentistProfile
	if role == account.RoleDentist {
		profile = &account.DentistProfile{
			ID:            uuid.New(),
			AccountID:     acc.ID,
			IsVerified:    false,
			IsActive:      true,
			LicenseNumber: in.LicenseNumber,
			Location:      in.Location,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := s.store.Create(ctx, acc, profile); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return nil, nil, ErrDuplicateAccount
		}
		return nil, nil, fmt.Errorf("failed to create account: %w", err)
	}

	return acc, token, nil
}

// Login checks, in order: the account exists, its email is verified, the
// password matches, and for dentists that an administrator approved them.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*LoginResult, error) {
	acc, err := s.store.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !acc.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if !s.hasher.Verify(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	var profile *account.DentistProfile
	if acc.Role == account.RoleDentist {
		profile, err = s.store.GetDentistProfile(ctx, acc.ID)
		if err != nil && !errors.Is(err, account.ErrProfileNotFound) {
			return nil, fmt.Errorf("failed to get dentist profile: %w", err)
		}
	}

	if !account.CanLogin(acc, profile) {
		return nil, ErrPendingApproval
	}

	token, expiresAt, err := s.tokens.CreateToken(acc.ID, acc.Role, s.cfg.SessionDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	return &LoginResult{Account: acc.Public(), Token: token, ExpiresAt: expiresAt}, nil
}

// VerifyEmail consumes a verification token. Unknown, replaced, expired and
// already consumed tokens are all reported as ErrInvalidOrExpiredToken.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*account.PublicAccount, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	tokenHash := hashToken(token)
	acc, err := s.store.GetByVerificationToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("failed to find account by token: %w", err)
	}

	now := s.now().UTC()
	if !acc.VerificationTokenValid(now) {
		return nil, ErrInvalidOrExpiredToken
	}

	if err := s.store.MarkEmailVerified(ctx, acc.ID, tokenHash, now); err != nil {
		if errors.Is(err, account.ErrStaleToken) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("failed to verify email: %w", err)
	}

	acc.EmailVerified = true
	acc.EmailVerificationTokenHash = nil
	acc.EmailVerificationExpiresAt = nil
	acc.UpdatedAt = now

	msg := email.WelcomeMessage{
		FirstName: acc.FirstName,
		Email:     acc.Email,
		Role:      string(acc.Role),
		LoginURL:  s.link("/login", ""),
	}
	s.notifyAsync(ctx, "welcome", acc.Email, func(ctx context.Context) error {
		return s.notifier.SendWelcomeEmail(ctx, msg)
	})

	s.logger.Info("email verified", "account_id", acc.ID, "email", acc.Email)
	pub := acc.Public()
	return &pub, nil
}

// ResendVerification replaces the verification token of an unverified account
func (s *Service) ResendVerification(ctx context.Context, emailAddr string) (string, error) {
	acc, err := s.store.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get account: %w", err)
	}

	if acc.EmailVerified {
		return "", ErrAlreadyVerified
	}

	token, err := newOneTimeToken(s.now().UTC(), s.cfg.VerificationTTL)
	if err != nil {
		return "", err
	}

	if err := s.store.UpdateVerificationToken(ctx, acc.ID, token.Hash, token.ExpiresAt); err != nil {
		// The conditional update only misses when the account got verified meanwhile.
		if errors.Is(err, account.ErrNotFound) {
			return "", ErrAlreadyVerified
		}
		return "", fmt.Errorf("failed to store verification token: %w", err)
	}

	msg := s.verificationMessage(acc, token.Value)
	s.notifyAsync(ctx, "verification", acc.Email, func(ctx context.Context) error {
		return s.notifier.SendVerificationEmail(ctx, msg)
	})

	return MessageVerificationResent, nil
}

// ForgotPassword issues a reset token when the account exists. The reply is
// identical whether or not it does.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) (string, error) {
	acc, err := s.store.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return MessagePasswordResetSent, nil
		}
		return "", fmt.Errorf("failed to get account: %w", err)
	}

	token, err := newOneTimeToken(s.now().UTC(), s.cfg.ResetTTL)
	if err != nil {
		return "", err
	}

	if err := s.store.UpdateResetToken(ctx, acc.ID, token.Hash, token.ExpiresAt); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return MessagePasswordResetSent, nil
		}
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	msg := email.PasswordResetMessage{
		FirstName: acc.FirstName,
		Email:     acc.Email,
		ResetURL:  s.link("/reset-password", token.Value),
	}
	s.notifyAsync(ctx, "password_reset", acc.Email, func(ctx context.Context) error {
		return s.notifier.SendPasswordResetEmail(ctx, msg)
	})

	return MessagePasswordResetSent, nil
}

// ResetPassword consumes a reset token and replaces the password hash
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if err := validatePassword(newPassword); err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrInvalidOrExpiredToken
	}

	tokenHash := hashToken(token)
	acc, err := s.store.GetByResetToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", fmt.Errorf("failed to find account by token: %w", err)
	}

	if !acc.ResetTokenValid(s.now().UTC()) {
		return "", ErrInvalidOrExpiredToken
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	// Expiry is checked again at write time, after the slow hash.
	if err := s.store.ResetPassword(ctx, acc.ID, tokenHash, passwordHash, s.now().UTC()); err != nil {
		if errors.Is(err, account.ErrStaleToken) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("password reset", "account_id", acc.ID)
	return MessagePasswordReset, nil
}

// Me returns the public projection of the authenticated account
func (s *Service) Me(ctx context.Context, principal Principal) (*account.PublicAccount, error) {
	acc, err := s.store.GetByID(ctx, principal.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	pub := acc.Public()
	return &pub, nil
}

func (s *Service) verificationMessage(acc *account.Account, token string) email.VerificationMessage {
	return email.VerificationMessage{
		FirstName:        acc.FirstName,
		Email:            acc.Email,
		Role:             string(acc.Role),
		VerificationURL:  s.link("/verify-email", token),
		RegistrationDate: acc.CreatedAt.Format("January 2, 2006"),
		BaseURL:          s.cfg.FrontendURL,
	}
}

func (s *Service) link(path, token string) string {
	if token == "" {
		return s.cfg.FrontendURL + path
	}
	return s.cfg.FrontendURL + path + "?token=" + url.QueryEscape(token)
}

// notifyAsync sends an email off the request path. The request context's
// values are kept but its cancellation is not, so the send outlives the reply.
func (s *Service) notifyAsync(ctx context.Context, kind, to string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.EmailTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.logger.Warn("failed to send email", "kind", kind, "email", to, "error", err)
		}
	})
}
