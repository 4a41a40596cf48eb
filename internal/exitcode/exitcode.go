package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
)

// Exit codes for consistent error handling across the CLI
const (
	Success      = 0
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ConfigError indicates an unreadable or invalid configuration.
	ConfigError = 3

	// AuthError indicates the session is missing or the backend rejected the credential.
	AuthError = 5

	// NetworkError indicates the backend could not be reached.
	NetworkError = 6

	// PermissionDenied indicates the signed-in user lacks a permission or role.
	PermissionDenied = 7

	// Interrupted indicates the run was cancelled by a signal.
	Interrupted = 130
)

// Exit terminates the process with code.
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	os.Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to a process exit code. Coded errors are
// classified by category, backend errors by status, anything else by message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if hrErr := errors.As(err); hrErr != nil {
		switch hrErr.Code.Category() {
		case "AUTH":
			return AuthError
		case "AUTHZ":
			return PermissionDenied
		case "CONFIG":
			return ConfigError
		case "INPUT":
			return UsageError
		}
		if hrErr.Code == errors.ErrCodeBackendUnreachable {
			return NetworkError
		}
		return GeneralError
	}

	var apiErr *hrapi.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.Unauthorized():
			return AuthError
		case apiErr.Forbidden():
			return PermissionDenied
		}
		return GeneralError
	}

	var transportErr *hrapi.TransportError
	if stderrors.As(err, &transportErr) {
		return NetworkError
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "unknown command"),
		strings.Contains(errMsg, "unknown flag"),
		strings.Contains(errMsg, "required flag"),
		strings.Contains(errMsg, "accepts ") && strings.Contains(errMsg, "arg"):
		return UsageError
	case strings.Contains(errMsg, "connection refused"),
		strings.Contains(errMsg, "no such host"),
		strings.Contains(errMsg, "timeout"):
		return NetworkError
	}

	return GeneralError
}

// Describe returns a human-readable description of an exit code
func Describe(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case AuthError:
		return "Authentication error"
	case PermissionDenied:
		return "Permission denied"
	case ConfigError:
		return "Configuration error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
