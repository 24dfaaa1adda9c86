package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/dentaportal/portal-api/templates"
)

const (
	kindVerification  = "verification"
	kindWelcome       = "welcome"
	kindPasswordReset = "password_reset"
)

var subjects = map[string]string{
	kindVerification:  "Verify your email address",
	kindWelcome:       "Welcome to Denta Portal",
	kindPasswordReset: "Reset your password",
}

// Renderer turns messages into HTML bodies using the embedded templates
type Renderer struct {
	templates map[string]*template.Template
	now       func() time.Time
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template), now: time.Now}
	for kind := range subjects {
		t, err := template.ParseFS(templates.EmailFS, "email/layout.html", "email/"+kind+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		r.templates[kind] = t
	}
	return r, nil
}

func (r *Renderer) Verification(msg VerificationMessage) (string, string, error) {
	body, err := r.render(kindVerification, struct {
		VerificationMessage
		IsDentist bool
		Year      int
	}{msg, msg.Role == "DENTIST", r.now().Year()})
	return subjects[kindVerification], body, err
}

func (r *Renderer) Welcome(msg WelcomeMessage) (string, string, error) {
	body, err := r.render(kindWelcome, struct {
		WelcomeMessage
		IsDentist bool
		Year      int
	}{msg, msg.Role == "DENTIST", r.now().Year()})
	return subjects[kindWelcome], body, err
}

func (r *Renderer) PasswordReset(msg PasswordResetMessage) (string, string, error) {
	body, err := r.render(kindPasswordReset, struct {
		PasswordResetMessage
		Year int
	}{msg, r.now().Year()})
	return subjects[kindPasswordReset], body, err
}

func (r *Renderer) render(kind string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates[kind].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", kind, err)
	}
	return buf.String(), nil
}
