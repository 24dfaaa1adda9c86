package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/dentaportal/portal-api/docs" // Swagger docs (generated)
	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/auth"
	"github.com/dentaportal/portal-api/internal/config"
	"github.com/dentaportal/portal-api/internal/database"
	"github.com/dentaportal/portal-api/internal/dentist"
	"github.com/dentaportal/portal-api/internal/email"
	httpServer "github.com/dentaportal/portal-api/internal/http"
	"github.com/dentaportal/portal-api/internal/logging"
	"github.com/dentaportal/portal-api/internal/monitoring"
	"github.com/dentaportal/portal-api/internal/ratelimit"
)

// @title           Denta Portal API
// @version         1.0
// @description     Identity, session and account lifecycle for the dental portal: registration, email verification, dentist approval and password recovery.

// @contact.name   API Support
// @contact.email  support@example.com

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	isDev := cfg.Server.IsDevelopment()
	logger := logging.NewLogger(isDev)
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_format", cfg.Auth.TokenFormat,
	)

	sentryEnabled, err := monitoring.Init(monitoring.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer monitoring.Flush(2 * time.Second)
	}

	sqlDB, err := database.Open(cfg.Database.ConnectionString(), database.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	db := database.NewBunDB(sqlDB, false)
	defer db.Close()

	tokens, err := newTokenService(cfg.Auth)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newRateLimiter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	repo := account.NewRepository(db)
	authService := auth.NewService(
		repo,
		auth.NewPasswordHasher(auth.DefaultArgon2Params),
		tokens,
		notifier,
		logger,
		auth.Config{
			SessionDuration:    cfg.Auth.SessionDuration,
			VerificationTTL:    cfg.Auth.VerificationTTL,
			ResetTTL:           cfg.Auth.ResetTTL,
			EmailTimeout:       cfg.Email.Timeout,
			FrontendURL:        cfg.App.FrontendURL,
			DefaultPhoneRegion: cfg.App.DefaultPhoneRegion,
		},
	)

	router := httpServer.NewRouter(cfg, httpServer.Handlers{
		Auth:       auth.NewHandler(authService, limiter, !isDev),
		Dentist:    dentist.NewHandler(dentist.NewService(repo, logger)),
		Middleware: auth.NewMiddleware(auth.NewGuard(tokens, repo)),
	}, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)
	// Let queued welcome and reset emails finish before the process exits
	server.OnShutdown(authService.WaitContext)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func newTokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	switch cfg.TokenFormat {
	case config.TokenFormatJWT:
		svc, err := auth.NewJWTService(cfg.JWTSecret, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		return svc, nil
	default:
		svc, err := auth.NewPasetoService(cfg.PasetoKey, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PASETO service: %w", err)
		}
		return svc, nil
	}
}

// newRateLimiter returns the Redis limiter, or a no-op when Redis is not configured
func newRateLimiter(cfg *config.Config, logger *logging.Logger) (auth.RateLimiter, func(), error) {
	if !cfg.RateLimit.Enabled || !cfg.Redis.Enabled() {
		logger.Warn("rate limiting disabled", "redis_configured", cfg.Redis.Enabled())
		return ratelimit.Noop{}, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	limiter := ratelimit.NewLimiter(client, ratelimit.Config{
		IPMaxRequests: cfg.RateLimit.IPMaxRequests,
		IPWindow:      cfg.RateLimit.IPWindow,
		EmailCooldown: cfg.RateLimit.EmailCooldown,
	})
	return limiter, func() { client.Close() }, nil
}

// newNotifier returns the SMTP gateway, or a logging stand-in when SMTP is not configured
func newNotifier(cfg *config.Config, logger *logging.Logger) (auth.Notifier, error) {
	if !cfg.Email.Enabled() {
		logger.Warn("SMTP not configured, emails will only be logged")
		return email.NewLogNotifier(logger), nil
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	svc, err := email.NewService(email.Config{
		Host:       cfg.Email.SMTPHost,
		Port:       cfg.Email.SMTPPort,
		User:       cfg.Email.SMTPUser,
		Password:   cfg.Email.SMTPPassword,
		From:       cfg.Email.From,
		MaxRetries: uint64(max(cfg.Email.MaxRetries, 0)),
		RetryDelay: cfg.Email.RetryDelay,
	}, renderer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	return svc, nil
}
