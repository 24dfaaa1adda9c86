package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const oneTimeTokenBytes = 32

// OneTimeToken is an emailed secret together with the digest that gets persisted
type OneTimeToken struct {
	Value     string
	Hash      string
	ExpiresAt time.Time
}

// newOneTimeToken creates a 256-bit random token expiring ttl after now
func newOneTimeToken(now time.Time, ttl time.Duration) (*OneTimeToken, error) {
	value, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &OneTimeToken{
		Value:     value,
		Hash:      hashToken(value),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, oneTimeTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken returns the hex SHA-256 digest stored in place of the raw token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
