package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session token formats
const (
	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Email     EmailConfig
	App       AppConfig
	RateLimit RateLimitConfig
	Sentry    SentryConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins for cookie auth
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	ChannelBinding  string // "require" for Neon DB, empty for local
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	TokenFormat string // paseto or jwt
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey       []byte
	JWTSecret       []byte
	Issuer          string
	SessionDuration time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	From         string
	MaxRetries   int
	RetryDelay   time.Duration
	Timeout      time.Duration
}

type AppConfig struct {
	FrontendURL        string // Frontend URL for verification and reset links
	DefaultPhoneRegion string
}

type RateLimitConfig struct {
	Enabled       bool
	IPMaxRequests int
	IPWindow      time.Duration
	EmailCooldown time.Duration
}

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Load reads configuration from environment variables
// Call godotenv.Load() before this if using .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")
	dur := &durationReader{}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             env,
			ReadTimeout:     dur.get("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    dur.get("SERVER_WRITE_TIMEOUT", 45*time.Second),
			ShutdownTimeout: dur.get("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "dentaportal"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			ChannelBinding:  getEnv("DB_CHANNEL_BINDING", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: dur.get("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenFormat:     strings.ToLower(getEnv("AUTH_TOKEN_FORMAT", TokenFormatPaseto)),
			PasetoKey:       []byte(getEnv("PASETO_KEY", "")),
			JWTSecret:       []byte(getEnv("JWT_SECRET", "")),
			Issuer:          getEnv("AUTH_ISSUER", "denta-portal"),
			SessionDuration: dur.get("SESSION_TOKEN_DURATION", 24*time.Hour),
			VerificationTTL: dur.get("VERIFICATION_TOKEN_TTL", 24*time.Hour),
			ResetTTL:        dur.get("RESET_TOKEN_TTL", 15*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASS", ""),
			From:         getEnv("SMTP_FROM", "Denta Portal <no-reply@dentaportal.local>"),
			MaxRetries:   getIntEnv("SMTP_MAX_RETRIES", 3),
			RetryDelay:   dur.get("SMTP_RETRY_DELAY", time.Second),
			Timeout:      dur.get("EMAIL_TIMEOUT", 30*time.Second),
		},
		App: AppConfig{
			FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			DefaultPhoneRegion: strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "US")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getBoolEnv("RATE_LIMIT_ENABLED", true),
			IPMaxRequests: getIntEnv("RATE_LIMIT_IP_MAX", 10),
			IPWindow:      dur.get("RATE_LIMIT_IP_WINDOW", 15*time.Minute),
			EmailCooldown: dur.get("RATE_LIMIT_EMAIL_COOLDOWN", 2*time.Minute),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", env),
			Release:     getEnv("SENTRY_RELEASE", ""),
			SampleRate:  getFloatEnv("SENTRY_SAMPLE_RATE", 1.0),
		},
	}

	if err := errors.Join(append(dur.errs, cfg.validate())...); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Auth.TokenFormat {
	case TokenFormatPaseto:
		// v4.local needs a 32 byte symmetric key
		if len(c.Auth.PasetoKey) != 32 {
			errs = append(errs, fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey)))
		}
	case TokenFormatJWT:
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.Auth.JWTSecret)))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_TOKEN_FORMAT must be %q or %q, got %q", TokenFormatPaseto, TokenFormatJWT, c.Auth.TokenFormat))
	}

	if c.Auth.SessionDuration <= 0 {
		errs = append(errs, errors.New("SESSION_TOKEN_DURATION must be positive"))
	}
	if c.Auth.VerificationTTL <= 0 || c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.Email.Enabled() {
		if _, err := mail.ParseAddress(c.Email.From); err != nil {
			errs = append(errs, fmt.Errorf("SMTP_FROM must be an email address, optionally with a display name: %w", err))
		}
	}
	if !strings.HasPrefix(c.App.FrontendURL, "http://") && !strings.HasPrefix(c.App.FrontendURL, "https://") {
		errs = append(errs, fmt.Errorf("FRONTEND_URL must be an http(s) URL, got %q", c.App.FrontendURL))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Enabled reports whether a Redis host is configured
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Enabled reports whether an SMTP relay is configured. Without one, emails are logged.
func (c *EmailConfig) Enabled() bool {
	return c.SMTPHost != ""
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return f
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return b
}

// durationReader collects malformed duration values so Load can report them
// instead of silently using defaults
type durationReader struct {
	errs []error
}

func (d *durationReader) get(key string, defaultValue time.Duration) time.Duration {
	value, err := getDurationEnv(key, defaultValue)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	return value
}

// getDurationEnv accepts a bare number of seconds ("30") or a Go duration ("500ms", "15m")
func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be seconds or a duration like 500ms, got %q", key, value)
	}

	return d, nil
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
