package email

import (
	"context"

	"github.com/dentaportal/portal-api/internal/logging"
)

// LogNotifier stands in for SMTP in development. Links are printed at debug
// level so a developer can follow them without a mail server.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationEmail(_ context.Context, msg VerificationMessage) error {
	n.logger.Info("verification email (not sent, SMTP disabled)", "email", msg.Email, "role", msg.Role)
	n.logger.Debug("verification link", "url", msg.VerificationURL)
	return nil
}

func (n *LogNotifier) SendWelcomeEmail(_ context.Context, msg WelcomeMessage) error {
	n.logger.Info("welcome email (not sent, SMTP disabled)", "email", msg.Email, "role", msg.Role)
	return nil
}

func (n *LogNotifier) SendPasswordResetEmail(_ context.Context, msg PasswordResetMessage) error {
	n.logger.Info("password reset email (not sent, SMTP disabled)", "email", msg.Email)
	n.logger.Debug("password reset link", "url", msg.ResetURL)
	return nil
}
