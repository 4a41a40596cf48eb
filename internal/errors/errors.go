package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeInvalidCredentials ErrorCode = "AUTH-001"
	ErrCodeNotAuthenticated   ErrorCode = "AUTH-002"
	ErrCodeSessionRejected    ErrorCode = "AUTH-003"
	ErrCodeCredentialStore    ErrorCode = "AUTH-004"
	ErrCodeResetFlow          ErrorCode = "AUTH-005"

	// Authorization errors (AUTHZ-001 to AUTHZ-099)
	ErrCodePermissionDenied ErrorCode = "AUTHZ-001"
	ErrCodeRoleRequired     ErrorCode = "AUTHZ-002"

	// Backend API errors (API-001 to API-099)
	ErrCodeRequestFailed      ErrorCode = "API-001"
	ErrCodeBackendUnreachable ErrorCode = "API-002"
	ErrCodeUnexpectedResponse ErrorCode = "API-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigParse   ErrorCode = "CONFIG-002"

	// Input errors (INPUT-001 to INPUT-099)
	ErrCodeInputRequired ErrorCode = "INPUT-001"
	ErrCodeInputInvalid  ErrorCode = "INPUT-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
)

// HRError is an error carrying a stable code and recovery suggestions for the operator.
type HRError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *HRError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *HRError) Unwrap() error {
	return e.Cause
}

// New creates a new HRError
func New(code ErrorCode, message string) *HRError {
	return &HRError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new HRError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *HRError {
	return &HRError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *HRError) WithSuggestion(suggestion string) *HRError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *HRError) WithSuggestions(suggestions ...string) *HRError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// As extracts the first *HRError in err's chain, or nil.
func As(err error) *HRError {
	var hrErr *HRError
	if stderrors.As(err, &hrErr) {
		return hrErr
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	hrErr := As(err)
	return hrErr != nil && hrErr.Code == code
}

// Category returns the family prefix of a code ("AUTH", "API", ...).
func (c ErrorCode) Category() string {
	if i := strings.IndexByte(string(c), '-'); i > 0 {
		return string(c)[:i]
	}
	return string(c)
}

// Common error constructors for frequently used errors

// NewNotAuthenticatedError is returned by commands that need a logged-in session.
func NewNotAuthenticatedError() *HRError {
	return New(ErrCodeNotAuthenticated, "not logged in").
		WithSuggestion("Run 'hradmin auth login' to authenticate").
		WithSuggestion("Check that the API URL points at the right backend: hradmin config view")
}

// NewLoginFailedError wraps the message the backend gave for a rejected login.
func NewLoginFailedError(message string) *HRError {
	return New(ErrCodeInvalidCredentials, message).
		WithSuggestion("Check the username (or email) and password").
		WithSuggestion("Reset a forgotten password: hradmin auth forgot-password --email <email>")
}

// NewPermissionDeniedError is the deny message shown when a view is gated by a permission.
func NewPermissionDeniedError(permission string) *HRError {
	return New(ErrCodePermissionDenied, fmt.Sprintf("you do not have permission %q", permission)).
		WithSuggestion("Ask an administrator to grant a role that includes this permission").
		WithSuggestion("List your permissions: hradmin auth status")
}

// NewRoleRequiredError is the deny message shown when a view is gated by a role.
func NewRoleRequiredError(role string) *HRError {
	return New(ErrCodeRoleRequired, fmt.Sprintf("this action requires the %q role", role)).
		WithSuggestion("List your roles: hradmin auth status")
}

// NewRequestFailedError wraps a failure result reported by the session or API layer.
func NewRequestFailedError(operation, message string) *HRError {
	return New(ErrCodeRequestFailed, fmt.Sprintf("%s: %s", operation, message))
}

// NewBackendUnreachableError reports a transport failure against the configured API.
func NewBackendUnreachableError(baseURL string, cause error) *HRError {
	return Wrap(ErrCodeBackendUnreachable, fmt.Sprintf("cannot reach HR backend at %s", baseURL), cause).
		WithSuggestion("Check that the backend is running").
		WithSuggestion("Override the API URL: --api-url or HRADMIN_API_URL")
}

// NewCredentialStoreError reports a failure to read or write the credential file.
func NewCredentialStoreError(path string, cause error) *HRError {
	return Wrap(ErrCodeCredentialStore, fmt.Sprintf("credential file %s is not usable", path), cause).
		WithSuggestion("Check permissions on the hradmin config directory").
		WithSuggestion("Remove the file and log in again")
}

// NewConfigInvalidError reports a configuration that failed validation.
func NewConfigInvalidError(details string) *HRError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Show the effective configuration: hradmin config view").
		WithSuggestion("Show the configuration file path: hradmin config path")
}

// NewConfigParseError reports a configuration file or environment that could not be parsed.
func NewConfigParseError(source string, cause error) *HRError {
	return Wrap(ErrCodeConfigParse, fmt.Sprintf("failed to parse configuration from %s", source), cause).
		WithSuggestion("Check the YAML syntax of the configuration file").
		WithSuggestion("Check HRADMIN_* environment variables")
}

// NewInputRequiredError reports a missing flag or prompt answer.
func NewInputRequiredError(field string) *HRError {
	return New(ErrCodeInputRequired, fmt.Sprintf("%s is required", field)).
		WithSuggestion("Pass it as a flag or run in an interactive terminal to be prompted")
}

// NewInputInvalidError reports a value that failed client-side validation.
func NewInputInvalidError(field, reason string) *HRError {
	return New(ErrCodeInputInvalid, fmt.Sprintf("invalid %s: %s", field, reason))
}
