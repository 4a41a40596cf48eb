package health

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/session"
)

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) *Result
}

// NewCheckFunc returns a Checker named name that calls fn.
func NewCheckFunc(name string, fn func(ctx context.Context) *Result) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                      { return c.name }
func (c *CheckFunc) Check(ctx context.Context) *Result { return c.fn(ctx) }

// NewConfigChecker reports whether validate accepts the configuration.
func NewConfigChecker(validate func() error, path string) Checker {
	return NewCheckFunc("config", func(context.Context) *Result {
		if err := validate(); err != nil {
			return Unhealthy(err.Error()).WithDetail("path", path)
		}
		return Healthy("configuration is valid").WithDetail("path", path)
	})
}

// NewCredentialFileChecker inspects the stored credential file. A missing
// file is fine; a file others can read is not.
func NewCredentialFileChecker(path string) Checker {
	return NewCheckFunc("credential-file", func(context.Context) *Result {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return Healthy("no stored credential").WithDetail("path", path)
		case err != nil:
			return Unhealthy(fmt.Sprintf("cannot stat credential file: %v", err)).WithDetail("path", path)
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return Degraded(fmt.Sprintf("credential file is accessible by other users (mode %#o)", mode)).
				WithDetail("path", path).
				WithDetail("fix", "chmod 600 "+path)
		}
		return Healthy("credential file is private").WithDetail("path", path)
	})
}

// ProfileFetcher is the backend call used to probe reachability.
type ProfileFetcher interface {
	GetProfile(ctx context.Context) (*hrapi.User, error)
}

// NewBackendChecker probes the backend with a profile request. Any HTTP
// answer, including 401, proves the backend is up.
func NewBackendChecker(api ProfileFetcher, baseURL string) Checker {
	return NewCheckFunc("backend", func(ctx context.Context) *Result {
		_, err := api.GetProfile(ctx)

		var apiErr *hrapi.APIError
		var decodeErr *hrapi.DecodeError
		switch {
		case err == nil:
			return Healthy("backend reachable").WithDetail("url", baseURL)
		case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
			return Healthy("backend reachable").
				WithDetail("url", baseURL).
				WithDetail("status", apiErr.StatusCode)
		case errors.As(err, &apiErr):
			return Degraded(fmt.Sprintf("backend answered %d: %s", apiErr.StatusCode, hrapi.Message(err, "server error"))).
				WithDetail("url", baseURL)
		case errors.As(err, &decodeErr):
			return Degraded("unexpected response; is this the HR backend's /api root?").WithDetail("url", baseURL)
		default:
			return Unhealthy(fmt.Sprintf("backend unreachable: %v", err)).WithDetail("url", baseURL)
		}
	})
}

// Initializer is the session startup protocol.
type Initializer interface {
	Init(ctx context.Context) session.Snapshot
}

// NewSessionChecker runs the startup protocol and reports who is signed in.
func NewSessionChecker(sess Initializer) Checker {
	return NewCheckFunc("session", func(ctx context.Context) *Result {
		snap := sess.Init(ctx)
		if !snap.Authenticated() {
			return Degraded("not signed in").WithDetail("fix", "hradmin auth login")
		}
		u := snap.Identity.User()
		return Healthy("signed in as "+u.Username).
			WithDetail("roles", snap.Identity.Roles()).
			WithDetail("permissions", len(snap.Identity.Permissions()))
	})
}
