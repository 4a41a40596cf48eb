package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotAuthenticated, "not logged in")

	if err.Code != ErrCodeNotAuthenticated {
		t.Errorf("expected code %s, got %s", ErrCodeNotAuthenticated, err.Code)
	}

	if err.Message != "not logged in" {
		t.Errorf("expected message 'not logged in', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeBackendUnreachable, "cannot reach backend", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *HRError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeConfigInvalid, "bad environment"),
			wantCode: "CONFIG-001",
			wantMsg:  "bad environment",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantCode: "IO-001",
			wantMsg:  "permission denied",
		},
		{
			name:     "suggestions are listed",
			err:      NewPermissionDeniedError("user_delete"),
			wantCode: "AUTHZ-001",
			wantMsg:  "Suggestions:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestAsAndHasCode(t *testing.T) {
	base := NewNotAuthenticatedError()
	wrapped := fmt.Errorf("users list: %w", base)

	if got := As(wrapped); got != base {
		t.Fatalf("As() = %v, want the wrapped HRError", got)
	}

	if !HasCode(wrapped, ErrCodeNotAuthenticated) {
		t.Error("HasCode should find AUTH-002 through wrapping")
	}

	if HasCode(wrapped, ErrCodePermissionDenied) {
		t.Error("HasCode should not match a different code")
	}

	if As(fmt.Errorf("plain")) != nil {
		t.Error("As should return nil for errors without an HRError")
	}
}

func TestCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeInvalidCredentials: "AUTH",
		ErrCodePermissionDenied:   "AUTHZ",
		ErrCodeRequestFailed:      "API",
		ErrorCode("weird"):        "weird",
	}

	for code, want := range tests {
		if got := code.Category(); got != want {
			t.Errorf("%s.Category() = %q, want %q", code, got, want)
		}
	}
}

func TestConstructorsCarrySuggestions(t *testing.T) {
	constructors := []*HRError{
		NewNotAuthenticatedError(),
		NewLoginFailedError("Invalid credentials"),
		NewRoleRequiredError("Admin"),
		NewBackendUnreachableError("http://localhost:5000/api", fmt.Errorf("dial tcp")),
		NewCredentialStoreError("/tmp/credentials.json", fmt.Errorf("denied")),
		NewConfigInvalidError("environment must be development or production"),
		NewConfigParseError("config.yaml", fmt.Errorf("yaml: line 1")),
		NewInputRequiredError("password"),
	}

	for _, err := range constructors {
		if len(err.Suggestions) == 0 {
			t.Errorf("%s should carry at least one suggestion", err.Code)
		}
	}
}
