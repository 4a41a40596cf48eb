package tui

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/resetflow"
)

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", strings.ToLower(field))
		}
		return nil
	}
}

func validEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("enter a valid email address")
	}
	return nil
}

func minLength(n int) func(string) error {
	return func(s string) error {
		if len(s) < n {
			return fmt.Errorf("password must be at least %d characters long", n)
		}
		return nil
	}
}

func matches(other *string) func(string) error {
	return func(s string) error {
		if s != *other {
			return errors.New("passwords do not match")
		}
		return nil
	}
}

func passwordInput(title string, value *string) *huh.Input {
	return huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(value)
}

// LoginForm asks for any credential field still empty.
func LoginForm(creds *hrapi.Credentials) *huh.Form {
	var fields []huh.Field
	if creds.Username == "" {
		fields = append(fields, huh.NewInput().Title("Username").Value(&creds.Username).Validate(required("Username")))
	}
	if creds.Password == "" {
		fields = append(fields, passwordInput("Password", &creds.Password).Validate(required("Password")))
	}
	return huh.NewForm(huh.NewGroup(fields...))
}

// RegisterForm collects a self-registration. The confirmation must match
// the password before the form completes.
func RegisterForm(reg *hrapi.Registration, confirm *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&reg.Username).Validate(required("Username")),
			huh.NewInput().Title("Email").Value(&reg.Email).Validate(validEmail),
			huh.NewInput().Title("First name").Value(&reg.FirstName),
			huh.NewInput().Title("Last name").Value(&reg.LastName),
		),
		huh.NewGroup(
			passwordInput("Password", &reg.Password).Validate(minLength(resetflow.MinPasswordLength)),
			passwordInput("Confirm password", confirm).Validate(matches(&reg.Password)),
		),
	)
}

// ForgotPasswordForm asks for the account email.
func ForgotPasswordForm(email *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(email).Validate(validEmail),
	))
}

// ResetPasswordForm collects the reset token and the new password. A token
// already held by the flow is pre-filled.
func ResetPasswordForm(token, password, confirm *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Reset token").Value(token).Validate(required("Reset token")),
		passwordInput("New password", password).Validate(minLength(resetflow.MinPasswordLength)),
		passwordInput("Confirm new password", confirm).Validate(matches(password)),
	))
}

// ChangePasswordForm collects the current and new password.
func ChangePasswordForm(current, next, confirm *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		passwordInput("Current password", current).Validate(required("Current password")),
		passwordInput("New password", next).Validate(minLength(resetflow.MinPasswordLength)),
		passwordInput("Confirm new password", confirm).Validate(matches(next)),
	))
}

// ProfileForm edits the profile fields, starting from the current values.
func ProfileForm(email, firstName, lastName *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(email).Validate(validEmail),
		huh.NewInput().Title("First name").Value(firstName),
		huh.NewInput().Title("Last name").Value(lastName),
	))
}
