package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/email"
)

// memoryStore is an AccountStore with the same conditional-update semantics
// as the bun repository
type memoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account.Account
	profiles map[uuid.UUID]*account.DentistProfile // keyed by account id
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts: make(map[uuid.UUID]*account.Account),
		profiles: make(map[uuid.UUID]*account.DentistProfile),
	}
}

func (m *memoryStore) Create(_ context.Context, acc *account.Account, profile *account.DentistProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	normalized := account.NormalizeEmail(acc.Email)
	for _, existing := range m.accounts {
		if existing.Email == normalized {
			return account.ErrDuplicateEmail
		}
	}

	stored := *acc
	stored.Email = normalized
	m.accounts[acc.ID] = &stored
	if profile != nil {
		p := *profile
		m.profiles[acc.ID] = &p
	}
	return nil
}

func (m *memoryStore) find(match func(*account.Account) bool) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acc := range m.accounts {
		if match(acc) {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	return m.find(func(a *account.Account) bool { return a.ID == id })
}

func (m *memoryStore) GetByEmail(_ context.Context, emailAddr string) (*account.Account, error) {
	normalized := account.NormalizeEmail(emailAddr)
	return m.find(func(a *account.Account) bool { return a.Email == normalized })
}

func (m *memoryStore) GetByVerificationToken(_ context.Context, tokenHash string) (*account.Account, error) {
	return m.find(func(a *account.Account) bool {
		return a.EmailVerificationTokenHash != nil && *a.EmailVerificationTokenHash == tokenHash
	})
}

func (m *memoryStore) GetByResetToken(_ context.Context, tokenHash string) (*account.Account, error) {
	return m.find(func(a *account.Account) bool {
		return a.PasswordResetTokenHash != nil && *a.PasswordResetTokenHash == tokenHash
	})
}

func (m *memoryStore) MarkEmailVerified(_ context.Context, id uuid.UUID, tokenHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok || acc.EmailVerificationTokenHash == nil || *acc.EmailVerificationTokenHash != tokenHash ||
		acc.EmailVerificationExpiresAt == nil || acc.EmailVerificationExpiresAt.Before(now) {
		return account.ErrStaleToken
	}

	acc.EmailVerified = true
	acc.EmailVerificationTokenHash = nil
	acc.EmailVerificationExpiresAt = nil
	acc.UpdatedAt = now
	return nil
}

func (m *memoryStore) ResetPassword(_ context.Context, id uuid.UUID, tokenHash, passwordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok || acc.PasswordResetTokenHash == nil || *acc.PasswordResetTokenHash != tokenHash ||
		acc.PasswordResetExpiresAt == nil || acc.PasswordResetExpiresAt.Before(now) {
		return account.ErrStaleToken
	}

	acc.PasswordHash = passwordHash
	acc.PasswordResetTokenHash = nil
	acc.PasswordResetExpiresAt = nil
	acc.UpdatedAt = now
	return nil
}

func (m *memoryStore) UpdateVerificationToken(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok || acc.EmailVerified {
		return account.ErrNotFound
	}
	acc.EmailVerificationTokenHash = &tokenHash
	acc.EmailVerificationExpiresAt = &expiresAt
	return nil
}

func (m *memoryStore) UpdateResetToken(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	acc.PasswordResetTokenHash = &tokenHash
	acc.PasswordResetExpiresAt = &expiresAt
	return nil
}

func (m *memoryStore) GetDentistProfile(_ context.Context, accountID uuid.UUID) (*account.DentistProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[accountID]
	if !ok {
		return nil, account.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// approve plays the administrator's part of the dentist gate
func (m *memoryStore) approve(accountID uuid.UUID, verified bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[accountID].IsVerified = verified
}

func (m *memoryStore) raw(emailAddr string) *account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Email == account.NormalizeEmail(emailAddr) {
			cp := *acc
			return &cp
		}
	}
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendVerificationEmail(ctx context.Context, msg email.VerificationMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockNotifier) SendWelcomeEmail(ctx context.Context, msg email.WelcomeMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockNotifier) SendPasswordResetEmail(ctx context.Context, msg email.PasswordResetMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// recordingNotifier keeps every message so tests can extract emailed tokens
type recordingNotifier struct {
	mu            sync.Mutex
	verifications []email.VerificationMessage
	welcomes      []email.WelcomeMessage
	resets        []email.PasswordResetMessage
	err           error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, msg email.VerificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, msg)
	return n.err
}

func (n *recordingNotifier) SendWelcomeEmail(_ context.Context, msg email.WelcomeMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, msg)
	return n.err
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, msg email.PasswordResetMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, msg)
	return n.err
}

type stubLimiter struct {
	ipExceeded bool
	cooldown   bool
	err        error
	recorded   []string
	cooldowns  []string
}

func (l *stubLimiter) AllowIPRequestWithPurpose(_ context.Context, _ string, purpose string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.ipExceeded {
		return false, nil
	}
	l.recorded = append(l.recorded, purpose)
	return true, nil
}

func (l *stubLimiter) CheckEmailCooldown(context.Context, string, string) (bool, error) {
	return l.cooldown, l.err
}

func (l *stubLimiter) SetEmailCooldown(_ context.Context, purpose, _ string) error {
	l.cooldowns = append(l.cooldowns, purpose)
	return l.err
}
