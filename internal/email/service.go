package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dentaportal/portal-api/internal/logging"
)

// Config holds SMTP delivery settings
type Config struct {
	Host       string
	Port       string
	User       string
	Password   string
	From       string
	MaxRetries uint64
	RetryDelay time.Duration
}

// Service delivers account emails over SMTP
type Service struct {
	cfg      Config
	from     *mail.Address
	renderer *Renderer
	logger   *logging.Logger
	send     func(ctx context.Context, to, subject, body string) error
}

// NewService parses the configured sender once. From may carry a display
// name ("Denta Portal <no-reply@example.com>"); only the bare address goes
// into the SMTP envelope.
func NewService(cfg Config, renderer *Renderer, logger *logging.Logger) (*Service, error) {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}

	s := &Service{cfg: cfg, from: from, renderer: renderer, logger: logger}
	s.send = s.sendSMTP
	return s, nil
}

// SendVerificationEmail sends the verification link to a newly registered account
func (s *Service) SendVerificationEmail(ctx context.Context, msg VerificationMessage) error {
	subject, body, err := s.renderer.Verification(msg)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.deliver(ctx, "verification", msg.Email, subject, body)
}

func (s *Service) SendWelcomeEmail(ctx context.Context, msg WelcomeMessage) error {
	subject, body, err := s.renderer.Welcome(msg)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.deliver(ctx, "welcome", msg.Email, subject, body)
}

// SendPasswordResetEmail sends a password reset link
func (s *Service) SendPasswordResetEmail(ctx context.Context, msg PasswordResetMessage) error {
	subject, body, err := s.renderer.PasswordReset(msg)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.deliver(ctx, "password_reset", msg.Email, subject, body)
}

// deliver retries transient SMTP failures with exponential backoff
func (s *Service) deliver(ctx context.Context, kind, to, subject, body string) error {
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.send(ctx, to, subject, body); err != nil {
			if isPermanent(err) {
				return err
			}
			s.logger.Warn("email delivery attempt failed", "kind", kind, "email", to, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to send email", "kind", kind, "email", to, "error", err)
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	s.logger.Info("email sent", "kind", kind, "email", to)
	return nil
}

func (s *Service) sendSMTP(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.from.String(), to, subject, body)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		from, to, subject, body,
	))
}

// isPermanent reports 5xx SMTP replies, which retrying cannot fix
func isPermanent(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 500
	}
	return strings.Contains(err.Error(), "smtp auth")
}
