package cmd

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/hradmin/internal/audit"
	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/config"
	"github.com/felixgeelhaar/hradmin/internal/credstore"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/log"
	"github.com/felixgeelhaar/hradmin/internal/session"
	"github.com/felixgeelhaar/hradmin/internal/telemetry"
	"github.com/felixgeelhaar/hradmin/internal/tui"
	"github.com/felixgeelhaar/hradmin/internal/ux"
	"github.com/felixgeelhaar/hradmin/internal/version"
)

// App is the wiring shared by every command of one invocation. It is
// populated by the root command's PersistentPreRunE.
type App struct {
	Flags   *CommandContext
	Config  *config.Config
	Logger  *log.Logger
	Client  *hrapi.Client
	Store   *credstore.FileStore
	Session *session.Manager
	Gate    *authz.Gate
	Journal *audit.Journal

	out    io.Writer
	errOut io.Writer
	in     io.Reader

	configErr error

	command  string
	started  time.Time
	span     trace.Span
	shutdown []func(context.Context) error
}

// lenientConfig marks commands that run, and report on, an invalid configuration.
const lenientConfig = "hradmin/lenient-config"

func (a *App) setup(cmd *cobra.Command) error {
	a.started = time.Now()
	a.command = cmd.CommandPath()
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	a.in = cmd.InOrStdin()

	flags, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	a.Flags = flags

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	if flags.APIURL != "" {
		cfg.APIURL = flags.APIURL
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.Format != "" {
		cfg.Output = flags.Format
	}
	if err := cfg.Validate(); err != nil {
		if cmd.Annotations[lenientConfig] == "" {
			return err
		}
		a.configErr = err
	}
	a.Config = cfg

	a.Logger = log.New(log.Config{
		Level:          log.ParseLevel(cfg.Log.Level),
		Format:         log.ParseFormat(cfg.Log.Format),
		Writer:         a.errOut,
		ServiceName:    "hradmin",
		ServiceVersion: version.Version,
	})
	log.SetDefaultLogger(a.Logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tcfg := cfg.Telemetry
	tcfg.ServiceName = "hradmin"
	tcfg.ServiceVersion = version.Version
	tcfg.Environment = cfg.Environment

	shutdownTraces, err := telemetry.InitProvider(ctx, tcfg)
	if err != nil {
		a.Logger.WithError(err).Warn("tracing disabled")
	} else {
		a.shutdown = append(a.shutdown, shutdownTraces)
	}
	shutdownMetrics, err := telemetry.InitMetricsProvider(ctx, tcfg)
	if err != nil {
		a.Logger.WithError(err).Warn("metrics disabled")
	} else {
		a.shutdown = append(a.shutdown, shutdownMetrics)
	}

	ctx, a.span = telemetry.StartCommandSpan(ctx, a.command)
	cmd.SetContext(ctx)

	opts := []hrapi.Option{
		hrapi.WithTimeout(cfg.Timeout),
		hrapi.WithUserAgent(version.GetInfo().UserAgent()),
		hrapi.WithLogger(a.Logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, hrapi.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	a.Client = hrapi.NewClient(cfg.BaseURL(), opts...)
	a.Store = credstore.NewFileStore(cfg.Dir)
	a.Session = session.New(a.Client, a.Store,
		session.WithLogger(a.Logger),
		session.WithTracerProvider(telemetry.TracerProvider()),
	)
	a.Client.SetCredentialSource(hrapi.CredentialFunc(a.Session.Credential))
	a.Gate = authz.NewGate(a.Session, a.Logger)

	a.Journal = audit.NewJournal(audit.Config{
		Dir:         cfg.AuditDir(),
		MaxFileSize: cfg.Audit.MaxFileSize,
		MaxFiles:    cfg.Audit.MaxFiles,
		Enabled:     cfg.Audit.Enabled,
		Command:     a.command,
		Logger:      a.Logger,
	})
	a.Journal.Watch(a.Session)
	a.shutdown = append(a.shutdown, func(context.Context) error { return a.Journal.Close() })
	return nil
}

// close ends the command span, records the outcome and flushes telemetry.
func (a *App) close(ctx context.Context, err error) {
	if a.span == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		telemetry.RecordError(a.span, err)
	}
	telemetry.RecordCommand(ctx, a.command, status, time.Since(a.started))
	a.span.End()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, fn := range a.shutdown {
		if shutdownErr := fn(ctx); shutdownErr != nil {
			a.Logger.WithError(shutdownErr).Debug("telemetry shutdown")
		}
	}
}

// signedIn runs the startup protocol and fails unless it ends authenticated.
func (a *App) signedIn(ctx context.Context) (*session.Identity, error) {
	snap := a.Session.Init(ctx)
	if !snap.Authenticated() {
		return nil, errors.NewNotAuthenticatedError()
	}
	return snap.Identity, nil
}

// authorized is signedIn followed by a permission check.
func (a *App) authorized(ctx context.Context, permission string) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	if err := a.Gate.Require(ctx, permission); err != nil {
		a.record(audit.NewEvent(audit.EventAccessDenied, "permission denied").
			WithUser(a.Session.Identity().User().Username).
			WithData("permission", permission))
		return err
	}
	return nil
}

// record appends e to the audit journal. Failures are logged, never returned.
func (a *App) record(e *audit.Event) {
	if err := a.Journal.Record(e); err != nil {
		a.Logger.WithError(err).Warn("failed to record audit event")
	}
}

func (a *App) interactive() bool {
	return !a.Flags.NoPrompt && tui.ShouldPrompt()
}

func (a *App) print(v any) error {
	f, err := ux.NewFormatter(a.Config.Output, &ux.FormatterOptions{
		Writer:  a.out,
		NoColor: a.Flags.NoColor,
	})
	if err != nil {
		return errors.NewInputInvalidError("format", err.Error())
	}
	return f.Format(v)
}

// apiError maps a backend or transport failure to a coded error.
func (a *App) apiError(err error, action string) error {
	return ux.FormatError(err, action, a.Config.BaseURL())
}
