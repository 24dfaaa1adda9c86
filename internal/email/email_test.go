package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentaportal/portal-api/internal/logging"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestRenderer_VerificationMentionsApprovalForDentists(t *testing.T) {
	r := newTestRenderer(t)

	subject, body, err := r.Verification(VerificationMessage{
		FirstName:        "Lee",
		Email:            "dr.lee@example.com",
		Role:             "DENTIST",
		VerificationURL:  "https://portal.example.com/verify-email?token=abc",
		RegistrationDate: "May 1, 2026",
		BaseURL:          "https://portal.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "Verify your email address", subject)
	assert.Contains(t, body, "Hi Lee")
	assert.Contains(t, body, "https://portal.example.com/verify-email?token=abc")
	assert.Contains(t, body, "approved by an administrator")
	assert.Contains(t, body, "2026 Denta Portal")
}

func TestRenderer_VerificationForPatients(t *testing.T) {
	r := newTestRenderer(t)

	_, body, err := r.Verification(VerificationMessage{FirstName: "Ann", Role: "PATIENT"})
	require.NoError(t, err)
	assert.NotContains(t, body, "approved by an administrator")
}

func TestRenderer_EscapesUserInput(t *testing.T) {
	r := newTestRenderer(t)

	_, body, err := r.PasswordReset(PasswordResetMessage{FirstName: "<script>alert(1)</script>", ResetURL: "https://x/reset"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestRenderer_Welcome(t *testing.T) {
	r := newTestRenderer(t)

	subject, body, err := r.Welcome(WelcomeMessage{FirstName: "Ann", Email: "ann@example.com", Role: "PATIENT", LoginURL: "https://x/login"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome to Denta Portal", subject)
	assert.Contains(t, body, "ready to use")
	assert.Contains(t, body, "https://x/login")
}

func newTestService(t *testing.T, maxRetries uint64) *Service {
	t.Helper()
	svc, err := NewService(Config{Host: "localhost", Port: "25", User: "noreply@example.com", MaxRetries: maxRetries, RetryDelay: time.Millisecond}, newTestRenderer(t), logging.Discard())
	require.NoError(t, err)
	return svc
}

func TestNewService_RejectsMalformedSender(t *testing.T) {
	_, err := NewService(Config{Host: "localhost", Port: "25", From: "Denta Portal <no-reply"}, newTestRenderer(t), logging.Discard())
	assert.Error(t, err)
}

// smtpSession is what a fake SMTP server saw during one connection
type smtpSession struct {
	mailFrom string
	rcptTo   string
	data     string
}

// startFakeSMTP accepts a single plain-text SMTP session without STARTTLS or AUTH
func startFakeSMTP(t *testing.T) (host, port string, session <-chan smtpSession) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan smtpSession, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		var got smtpSession
		reply := func(line string) { _ = tp.PrintfLine("%s", line) }

		reply("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				out <- got
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 localhost")
			case strings.HasPrefix(cmd, "MAIL FROM:"):
				got.mailFrom = line
				reply("250 OK")
			case strings.HasPrefix(cmd, "RCPT TO:"):
				got.rcptTo = line
				reply("250 OK")
			case cmd == "DATA":
				reply("354 End data with <CR><LF>.<CR><LF>")
				lines, err := tp.ReadDotLines()
				if err != nil {
					out <- got
					return
				}
				got.data = strings.Join(lines, "\n")
				reply("250 OK")
			case cmd == "QUIT":
				reply("221 Bye")
				out <- got
				return
			default:
				reply("250 OK")
			}
		}
	}()

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port, out
}

func TestService_EnvelopeUsesBareSenderAddress(t *testing.T) {
	host, port, sessions := startFakeSMTP(t)

	svc, err := NewService(Config{
		Host:       host,
		Port:       port,
		From:       "Denta Portal <no-reply@dentaportal.local>",
		RetryDelay: time.Millisecond,
	}, newTestRenderer(t), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = svc.SendWelcomeEmail(ctx, WelcomeMessage{FirstName: "Ann", Email: "ann@example.com", Role: "PATIENT", LoginURL: "https://x/login"})
	require.NoError(t, err)

	var got smtpSession
	select {
	case got = <-sessions:
	case <-ctx.Done():
		t.Fatal("fake SMTP server saw no session")
	}

	assert.Equal(t, "MAIL FROM:<no-reply@dentaportal.local>", got.mailFrom)
	assert.Equal(t, "RCPT TO:<ann@example.com>", got.rcptTo)
	assert.Contains(t, got.data, `From: "Denta Portal" <no-reply@dentaportal.local>`)
	assert.Contains(t, got.data, "Subject: Welcome to Denta Portal")
}

func TestService_RetriesTransientFailures(t *testing.T) {
	svc := newTestService(t, 3)

	attempts := 0
	svc.send = func(_ context.Context, to, subject, _ string) error {
		attempts++
		assert.Equal(t, "ann@example.com", to)
		assert.Equal(t, "Reset your password", subject)
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	}

	err := svc.SendPasswordResetEmail(context.Background(), PasswordResetMessage{FirstName: "Ann", Email: "ann@example.com", ResetURL: "https://x"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestService_DoesNotRetryPermanentFailures(t *testing.T) {
	svc := newTestService(t, 3)

	attempts := 0
	svc.send = func(context.Context, string, string, string) error {
		attempts++
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	}

	err := svc.SendWelcomeEmail(context.Background(), WelcomeMessage{Email: "gone@example.com"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestService_GivesUpAfterMaxRetries(t *testing.T) {
	svc := newTestService(t, 2)

	attempts := 0
	svc.send = func(context.Context, string, string, string) error {
		attempts++
		return errors.New("timeout")
	}

	err := svc.SendVerificationEmail(context.Background(), VerificationMessage{Email: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@example.com", "to@example.com", "Hello", "<p>x</p>")
	assert.True(t, bytes.HasPrefix(msg, []byte("From: from@example.com\r\nTo: to@example.com\r\nSubject: Hello\r\n")))
	assert.Contains(t, string(msg), "Content-Type: text/html; charset=UTF-8")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.New(&buf, false))

	require.NoError(t, n.SendPasswordResetEmail(context.Background(), PasswordResetMessage{Email: "a@example.com", ResetURL: "https://x/reset?token=secret"}))
	assert.Contains(t, buf.String(), "a@example.com")
	assert.NotContains(t, buf.String(), "token=secret")
}
