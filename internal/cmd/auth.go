package cmd

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/audit"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/resetflow"
	"github.com/felixgeelhaar/hradmin/internal/tui"
)

func newAuthCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign out and manage your password",
	}
	cmd.AddCommand(
		newAuthLoginCmd(a),
		newAuthLogoutCmd(a),
		newAuthStatusCmd(a),
		newAuthRegisterCmd(a),
		newAuthForgotPasswordCmd(a),
		newAuthResetPasswordCmd(a),
		newAuthChangePasswordCmd(a),
		newAuthHistoryCmd(a),
	)
	return cmd
}

func newAuthLoginCmd(a *App) *cobra.Command {
	var (
		creds         hrapi.Credentials
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session credential",
		Example: `  hradmin auth login -u admin
  echo "$HR_PASSWORD" | hradmin auth login -u admin --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if snap := a.Session.Init(ctx); snap.Authenticated() {
				return a.print(message{Message: fmt.Sprintf(
					"Already signed in as %s. Run 'hradmin auth logout' to switch accounts.",
					snap.Identity.User().Username)})
			}

			if passwordStdin {
				pw, err := readLines(a.in, 1)
				if err != nil {
					return err
				}
				creds.Password = pw[0]
			}
			if creds.Username == "" || creds.Password == "" {
				if !a.interactive() {
					if creds.Username == "" {
						return errors.NewInputRequiredError("--username")
					}
					return errors.NewInputRequiredError("--password")
				}
				if err := tui.LoginForm(&creds).Run(); err != nil {
					return err
				}
			}

			res := a.Session.Login(ctx, creds)
			if !res.Success {
				a.record(audit.NewEvent(audit.EventLoginFailed, "login failed").
					WithUser(creds.Username).
					WithData("reason", res.Error))
				return errors.NewLoginFailedError(res.Error)
			}
			u := res.Data.User()
			return a.print(message{Message: fmt.Sprintf("Logged in as %s (%s)", u.Username, joinOrNone(res.Data.Roles()))})
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "username or email address")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newAuthLogoutCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !a.Session.Init(ctx).Authenticated() {
				return a.print(message{Message: "Not signed in."})
			}
			a.Session.Logout(ctx)
			return a.print(message{Message: "Logged out."})
		},
	}
}

func newAuthStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who you are signed in as and what you may do",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := a.Session.Init(cmd.Context())
			st := status{Status: snap.Status.String(), APIURL: a.Config.BaseURL()}
			if snap.Authenticated() {
				name := snap.Identity.User().Username
				st.User = &name
				st.Roles = snap.Identity.Roles()
				st.Permissions = snap.Identity.Permissions()

				claims := &jwt.RegisteredClaims{}
				if _, _, err := jwt.NewParser().ParseUnverified(snap.Credential, claims); err == nil && claims.ExpiresAt != nil {
					exp := claims.ExpiresAt.Time
					st.ExpiresAt = &exp
				}
			}
			return a.print(st)
		},
	}
}

func newAuthRegisterCmd(a *App) *cobra.Command {
	var (
		reg           hrapi.Registration
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a.Session.Init(ctx)

			if passwordStdin {
				pw, err := readLines(a.in, 1)
				if err != nil {
					return err
				}
				reg.Password = pw[0]
			}
			if reg.Username == "" || reg.Email == "" || reg.Password == "" {
				if !a.interactive() {
					return errors.NewInputRequiredError(firstMissing(
						[2]string{"--username", reg.Username},
						[2]string{"--email", reg.Email},
						[2]string{"--password", reg.Password},
					))
				}
				confirm := ""
				if err := tui.RegisterForm(&reg, &confirm).Run(); err != nil {
					return err
				}
			}
			if len(reg.Password) < resetflow.MinPasswordLength {
				return errors.NewInputInvalidError("password", fmt.Sprintf("must be at least %d characters long", resetflow.MinPasswordLength))
			}

			res := a.Session.Register(ctx, reg)
			if !res.Success {
				return errors.NewRequestFailedError("register", res.Error)
			}
			return a.print(message{Message: res.Data.Message() + "\nSign in with: hradmin auth login -u " + reg.Username})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&reg.Username, "username", "u", "", "username")
	f.StringVar(&reg.Email, "email", "", "email address")
	f.StringVarP(&reg.Password, "password", "p", "", "password (prefer --password-stdin)")
	f.BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	f.StringVar(&reg.FirstName, "first-name", "", "first name")
	f.StringVar(&reg.LastName, "last-name", "", "last name")
	return cmd
}

func newAuthForgotPasswordCmd(a *App) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a.Session.Init(ctx)

			if email == "" && a.interactive() {
				if err := tui.ForgotPasswordForm(&email).Run(); err != nil {
					return err
				}
			}

			flow := resetflow.New(a.Session)
			if err := flow.Request(ctx, email); err != nil {
				return flowError("forgot-password", err)
			}
			if err := a.print(message{Message: flow.Message(), ResetToken: flow.Token()}); err != nil {
				return err
			}

			if flow.Token() == "" || !a.interactive() {
				return nil
			}
			now, err := tui.PromptForConfirmation("Set a new password now?", true)
			if err != nil || !now {
				return err
			}
			token, pw, confirm := flow.Token(), "", ""
			if err := tui.ResetPasswordForm(&token, &pw, &confirm).Run(); err != nil {
				return err
			}
			if err := flow.Reset(ctx, token, pw, confirm); err != nil {
				return flowError("reset-password", err)
			}
			a.record(audit.NewEvent(audit.EventPasswordReset, "password reset").WithData("email", email))
			return a.print(message{Message: flow.Message()})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address of the account")
	return cmd
}

func newAuthResetPasswordCmd(a *App) *cobra.Command {
	var (
		token, password string
		passwordStdin   bool
	)
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a.Session.Init(ctx)

			if passwordStdin {
				pw, err := readLines(a.in, 1)
				if err != nil {
					return err
				}
				password = pw[0]
			}
			confirm := password
			if (token == "" || password == "") && a.interactive() {
				confirm = ""
				if err := tui.ResetPasswordForm(&token, &password, &confirm).Run(); err != nil {
					return err
				}
			}

			flow := resetflow.New(a.Session)
			if err := flow.Reset(ctx, token, password, confirm); err != nil {
				return flowError("reset-password", err)
			}
			a.record(audit.NewEvent(audit.EventPasswordReset, "password reset"))
			return a.print(message{Message: flow.Message() + "\nSign in with your new password: hradmin auth login"})
		},
	}
	f := cmd.Flags()
	f.StringVar(&token, "token", "", "reset token from forgot-password")
	f.StringVarP(&password, "password", "p", "", "new password (prefer --password-stdin)")
	f.BoolVar(&passwordStdin, "password-stdin", false, "read the new password from stdin")
	return cmd
}

func newAuthChangePasswordCmd(a *App) *cobra.Command {
	var (
		current, next string
		stdin         bool
	)
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the password of the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			id, err := a.signedIn(ctx)
			if err != nil {
				return err
			}

			if stdin {
				lines, err := readLines(a.in, 2)
				if err != nil {
					return err
				}
				current, next = lines[0], lines[1]
			}
			if current == "" || next == "" {
				if !a.interactive() {
					if current == "" {
						return errors.NewInputRequiredError("--current")
					}
					return errors.NewInputRequiredError("--new")
				}
				confirm := ""
				if err := tui.ChangePasswordForm(&current, &next, &confirm).Run(); err != nil {
					return err
				}
			}
			if len(next) < resetflow.MinPasswordLength {
				return errors.NewInputInvalidError("new password", fmt.Sprintf("must be at least %d characters long", resetflow.MinPasswordLength))
			}

			res := a.Session.ChangePassword(ctx, current, next)
			if !res.Success {
				return errors.NewRequestFailedError("change-password", res.Error)
			}
			a.record(audit.NewEvent(audit.EventPasswordChanged, "password changed").WithUser(id.User().Username))
			return a.print(message{Message: res.Data.Message()})
		},
	}
	f := cmd.Flags()
	f.StringVar(&current, "current", "", "current password")
	f.StringVar(&next, "new", "", "new password")
	f.BoolVar(&stdin, "stdin", false, "read the current and new password from the first two lines of stdin")
	return cmd
}

// readLines reads n newline-terminated values, trimming line endings.
func readLines(r io.Reader, n int) ([]string, error) {
	sc := bufio.NewScanner(r)
	out := make([]string, 0, n)
	for len(out) < n && sc.Scan() {
		out = append(out, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read stdin", err)
	}
	if len(out) < n {
		return nil, errors.NewInputRequiredError(fmt.Sprintf("%d line(s) on stdin", n))
	}
	return out, nil
}

func flowError(op string, err error) error {
	var verr *resetflow.ValidationError
	if stderrors.As(err, &verr) {
		return errors.NewInputInvalidError(verr.Field, verr.Reason)
	}
	return errors.New(errors.ErrCodeResetFlow, op+": "+err.Error())
}

// firstMissing returns the name of the first empty (name, value) pair.
func firstMissing(fields ...[2]string) string {
	for _, f := range fields {
		if f[1] == "" {
			return f[0]
		}
	}
	return ""
}
