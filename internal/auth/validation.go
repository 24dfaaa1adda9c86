package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	"github.com/dentaportal/portal-api/internal/account"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// RegisterInput is the registration payload shared by the HTTP API and the CLI
type RegisterInput struct {
	Role          string `json:"role"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Password      string `json:"password"`
	LicenseNumber string `json:"license_number,omitempty"`
	Location      string `json:"location,omitempty"`
}

// Normalize trims free-text fields and canonicalises email and phone. Phone
// numbers that fail to parse are left as typed so Validate can report them.
func (in *RegisterInput) Normalize(defaultRegion string) {
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = account.NormalizeEmail(in.Email)
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	in.Location = strings.TrimSpace(in.Location)
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Phone != "" {
		if num, err := phonenumbers.Parse(in.Phone, defaultRegion); err == nil && phonenumbers.IsValidNumber(num) {
			in.Phone = phonenumbers.Format(num, phonenumbers.E164)
		}
	}
}

// Validate checks the payload. It expects Normalize to have run first.
func (in RegisterInput) Validate() error {
	licenseRules := []validation.Rule{validation.Length(0, 64)}
	if in.Role == string(account.RoleDentist) {
		licenseRules = append(licenseRules, validation.Required)
	}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Role, validation.Required, validation.By(validRole)),
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Phone, validation.By(e164Phone)),
		validation.Field(&in.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		validation.Field(&in.LicenseNumber, licenseRules...),
		validation.Field(&in.Location, validation.Length(0, 255)),
	)
	return toValidationError(err)
}

// validatePassword applies the registration password rules to a replacement password
func validatePassword(password string) error {
	err := validation.Validate(password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength))
	if err != nil {
		return &ValidationError{Fields: map[string]string{"new_password": err.Error()}}
	}
	return nil
}

func validRole(value any) error {
	s, _ := value.(string)
	if _, ok := account.ParseRole(s); !ok {
		return errors.New("must be one of ADMIN, DENTIST, PATIENT")
	}
	return nil
}

func e164Phone(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		if fieldErr != nil {
			fields[field] = fieldErr.Error()
		}
	}
	return &ValidationError{Fields: fields}
}
