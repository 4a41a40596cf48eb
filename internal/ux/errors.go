package ux

import (
	"errors"
	"fmt"
	"strings"

	hrerrors "github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
)

// EnhanceError turns backend and transport errors into coded errors with
// recovery suggestions. Errors that already carry a code pass through.
func EnhanceError(err error, baseURL string) error {
	if err == nil {
		return nil
	}
	if hrerrors.As(err) != nil {
		return err
	}

	var transportErr *hrapi.TransportError
	if errors.As(err, &transportErr) {
		return hrerrors.NewBackendUnreachableError(baseURL, transportErr.Err)
	}

	var apiErr *hrapi.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		switch {
		case apiErr.Unauthorized():
			return hrerrors.New(hrerrors.ErrCodeSessionRejected, msg).
				WithSuggestion("Your session may have expired. Run 'hradmin auth login' again")
		case apiErr.Forbidden():
			return hrerrors.New(hrerrors.ErrCodePermissionDenied, msg).
				WithSuggestion("Check your permissions with 'hradmin auth status'")
		default:
			return hrerrors.New(hrerrors.ErrCodeRequestFailed, msg)
		}
	}

	var decodeErr *hrapi.DecodeError
	if errors.As(err, &decodeErr) {
		return hrerrors.Wrap(hrerrors.ErrCodeUnexpectedResponse, "unexpected response from backend", err).
			WithSuggestion("Check that --api-url points at the HR backend's /api root")
	}

	if strings.Contains(err.Error(), "permission denied") {
		return hrerrors.Wrap(hrerrors.ErrCodeFileReadFailed, "file access failed", err).
			WithSuggestion("Check permissions on the hradmin config directory")
	}

	return err
}

// FormatError enhances err and prefixes it with what was being attempted.
func FormatError(err error, action, baseURL string) error {
	if err == nil {
		return nil
	}
	enhanced := EnhanceError(err, baseURL)
	if action == "" {
		return enhanced
	}
	return fmt.Errorf("%s: %w", action, enhanced)
}
