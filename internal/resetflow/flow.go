// Package resetflow drives the two-step forgotten-password flow: request a
// reset token by email, then set a new password with it.
package resetflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/session"
)

// MinPasswordLength is the shortest new password the flow accepts.
const MinPasswordLength = 6

// Step is the flow's current screen.
type Step int

const (
	StepRequest Step = iota
	StepReset
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepRequest:
		return "request"
	case StepReset:
		return "reset"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Service is the part of the session the flow forwards to.
type Service interface {
	ForgotPassword(ctx context.Context, email string) session.Result[hrapi.Payload]
	ResetPassword(ctx context.Context, token, newPassword string) session.Result[hrapi.Payload]
}

// Flow holds the intermediate state between the two steps. The reset token
// lives only here; it is never persisted.
type Flow struct {
	svc Service

	step    Step
	email   string
	token   string
	message string
}

// New starts a flow at StepRequest.
func New(svc Service) *Flow {
	return &Flow{svc: svc}
}

func (f *Flow) Step() Step { return f.step }

// Email is the address the reset was requested for.
func (f *Flow) Email() string { return f.email }

// Token is the reset token the backend echoed back, if any. Views use it to
// pre-fill the reset step.
func (f *Flow) Token() string { return f.token }

// Message is the last success message from the backend.
func (f *Flow) Message() string { return f.message }

// Request asks for a reset token. On success the flow advances to
// StepReset, keeping any reset_token the backend returned.
func (f *Flow) Request(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}

	res := f.svc.ForgotPassword(ctx, email)
	if !res.Success {
		return &FailureError{Message: res.Error}
	}

	f.email = email
	f.token = res.Data.String("reset_token")
	f.message = res.Data.Message()
	f.step = StepReset
	return nil
}

// Reset sets the new password. An empty token falls back to the one kept
// from Request. On success the flow is done.
func (f *Flow) Reset(ctx context.Context, token, newPassword, confirm string) error {
	if token == "" {
		token = f.token
	}
	if err := Validate(token, newPassword, confirm); err != nil {
		return err
	}

	res := f.svc.ResetPassword(ctx, token, newPassword)
	if !res.Success {
		return &FailureError{Message: res.Error}
	}

	f.token = ""
	f.message = res.Data.Message()
	f.step = StepDone
	return nil
}

// Validate checks the reset step's inputs before anything is sent.
func Validate(token, newPassword, confirm string) error {
	switch {
	case strings.TrimSpace(token) == "":
		return &ValidationError{Field: "token", Reason: "is required"}
	case len(newPassword) < MinPasswordLength:
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters long", MinPasswordLength)}
	case newPassword != confirm:
		return &ValidationError{Field: "confirmation", Reason: "does not match the new password"}
	}
	return nil
}

// ValidationError is a client-side input problem; nothing was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Reason }

// FailureError carries the backend's failure message.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string { return e.Message }
