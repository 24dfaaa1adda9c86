package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// AdminDetails collects the fields needed to create an administrator
type AdminDetails struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
}

// Complete reports whether every field was supplied, so no prompt is needed
func (d *AdminDetails) Complete() bool {
	return strings.TrimSpace(d.FirstName) != "" &&
		strings.TrimSpace(d.LastName) != "" &&
		strings.TrimSpace(d.Email) != "" &&
		strings.TrimSpace(d.Phone) != "" &&
		d.Password != ""
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

// RunAdminForm prompts for the administrator details. Values already set
// (from flags) are shown pre-filled.
func RunAdminForm(d *AdminDetails) error {
	var confirm string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("First name").
				Value(&d.FirstName).
				Validate(required("first name")),

			huh.NewInput().
				Title("Last name").
				Value(&d.LastName).
				Validate(required("last name")),

			huh.NewInput().
				Title("Email").
				Placeholder("admin@example.com").
				Value(&d.Email).
				Validate(required("email")),

			huh.NewInput().
				Title("Phone").
				Description("E.164 or a national number").
				Placeholder("+16502530000").
				Value(&d.Phone).
				Validate(required("phone")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&d.Password).
				Validate(required("password")),

			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != d.Password {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeCatppuccin())

	return form.Run()
}
