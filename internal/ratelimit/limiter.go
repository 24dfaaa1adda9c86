package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config controls the sliding window and cooldown lengths
type Config struct {
	IPMaxRequests int
	IPWindow      time.Duration
	EmailCooldown time.Duration
}

// DefaultConfig allows 10 requests per 15 minutes per IP and purpose,
// and one email per address every 2 minutes.
var DefaultConfig = Config{
	IPMaxRequests: 10,
	IPWindow:      15 * time.Minute,
	EmailCooldown: 2 * time.Minute,
}

// Limiter implements per-IP sliding windows and per-email cooldowns in Redis
type Limiter struct {
	client redis.Cmdable
	cfg    Config
	now    func() time.Time
}

func NewLimiter(client redis.Cmdable, cfg Config) *Limiter {
	if cfg.IPMaxRequests <= 0 {
		cfg.IPMaxRequests = DefaultConfig.IPMaxRequests
	}
	if cfg.IPWindow <= 0 {
		cfg.IPWindow = DefaultConfig.IPWindow
	}
	if cfg.EmailCooldown <= 0 {
		cfg.EmailCooldown = DefaultConfig.EmailCooldown
	}
	return &Limiter{client: client, cfg: cfg, now: time.Now}
}

func ipKey(purpose, ip string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

// cooldownKey hashes the address so raw emails never land in Redis
func cooldownKey(purpose, email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("ratelimit:cooldown:%s:%s", purpose, hex.EncodeToString(sum[:]))
}

// AllowIPRequestWithPurpose records one request for ip and purpose and
// reports whether it fits in the window. Pruning, recording and counting run
// in a single MULTI/EXEC so concurrent requests cannot all pass on a stale count.
func (l *Limiter) AllowIPRequestWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	key := ipKey(purpose, ip)
	now := l.now()
	windowStart := now.Add(-l.cfg.IPWindow).UnixMilli()
	member := uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.cfg.IPWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to apply rate limit: %w", err)
	}

	if count.Val() <= int64(l.cfg.IPMaxRequests) {
		return true, nil
	}

	// Rejected requests do not occupy the window
	_ = l.client.ZRem(ctx, key, member).Err()
	return false, nil
}

// CheckEmailCooldown reports whether an email for purpose was sent to this address recently
func (l *Limiter) CheckEmailCooldown(ctx context.Context, purpose, email string) (bool, error) {
	n, err := l.client.Exists(ctx, cooldownKey(purpose, email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

func (l *Limiter) SetEmailCooldown(ctx context.Context, purpose, email string) error {
	if err := l.client.Set(ctx, cooldownKey(purpose, email), "1", l.cfg.EmailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}

// Noop never limits. It is used when Redis is not configured.
type Noop struct{}

func (Noop) AllowIPRequestWithPurpose(context.Context, string, string) (bool, error) {
	return true, nil
}

func (Noop) CheckEmailCooldown(context.Context, string, string) (bool, error) { return false, nil }

func (Noop) SetEmailCooldown(context.Context, string, string) error { return nil }
