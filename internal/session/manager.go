// Package session holds the single authority for who is signed in and with
// what rights. Views read its snapshot and predicates; the REST layer reads
// its credential at request time.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/hradmin/internal/credstore"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/log"
)

// Fallback messages used when the backend supplies none.
const (
	MsgLoginFailed          = "Login failed"
	MsgRegistrationFailed   = "Registration failed"
	MsgForgotPasswordFailed = "Password reset request failed"
	MsgResetPasswordFailed  = "Password reset failed"
	MsgProfileUpdateFailed  = "Profile update failed"
	MsgChangePasswordFailed = "Password change failed"
	MsgCredentialNotSaved   = "Login failed: credential could not be saved"
)

// Backend is the subset of the REST API the session drives.
type Backend interface {
	Login(ctx context.Context, creds hrapi.Credentials) (*hrapi.LoginResponse, error)
	Register(ctx context.Context, reg hrapi.Registration) (hrapi.Payload, error)
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*hrapi.User, error)
	UpdateProfile(ctx context.Context, update hrapi.ProfileUpdate) (*hrapi.User, error)
	ForgotPassword(ctx context.Context, email string) (hrapi.Payload, error)
	ResetPassword(ctx context.Context, token, newPassword string) (hrapi.Payload, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) (hrapi.Payload, error)
}

// Manager is the process-wide session. Create one with New, call Init once
// at startup, and pass it to every consumer.
//
// Operations that change the session are serialized on one writer lock and
// applied in the order they acquire it. Readers never block: they load the
// current Snapshot, which is always a complete triple.
type Manager struct {
	api    Backend
	store  credstore.Store
	logger *log.Logger
	tracer trace.Tracer

	mu          sync.Mutex
	initialized bool
	listeners   map[int]func(Snapshot)
	nextID      int

	state   atomic.Pointer[Snapshot]
	loading atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l.WithComponent("session") }
}

// WithTracerProvider sets where session spans go. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer("github.com/felixgeelhaar/hradmin/internal/session") }
}

// New returns a Manager in the Initializing state.
func New(api Backend, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		api:       api,
		store:     store,
		logger:    log.Nop(),
		tracer:    otel.Tracer("github.com/felixgeelhaar/hradmin/internal/session"),
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&Snapshot{Status: StatusInitializing})
	m.loading.Store(true)
	return m
}

// Snapshot returns the current state triple.
func (m *Manager) Snapshot() Snapshot {
	return *m.state.Load()
}

func (m *Manager) Status() Status { return m.state.Load().Status }

func (m *Manager) Identity() *Identity { return m.state.Load().Identity }

func (m *Manager) Authenticated() bool { return m.state.Load().Authenticated() }

// Credential returns the bearer credential to attach to the next request,
// or "" when none is held.
func (m *Manager) Credential() string {
	return m.state.Load().Credential
}

// Loading is true until Init has finished.
func (m *Manager) Loading() bool {
	return m.loading.Load()
}

// HasPermission reports whether the signed-in identity holds the named
// permission. Always false when nobody is signed in.
func (m *Manager) HasPermission(name string) bool {
	return m.state.Load().Identity.HasPermission(name)
}

// HasRole reports whether the signed-in identity holds the named role.
func (m *Manager) HasRole(name string) bool {
	return m.state.Load().Identity.HasRole(name)
}

// OnChange registers fn to receive every published snapshot. fn runs on the
// goroutine that changed the session, with the writer lock held, so it must
// not call back into session operations. The returned func unregisters it.
func (m *Manager) OnChange(fn func(Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// publish replaces the snapshot. Callers hold m.mu.
func (m *Manager) publish(s Snapshot) {
	m.state.Store(&s)
	for _, fn := range m.listeners {
		fn(s)
	}
}

// Init runs the startup protocol: load the stored credential, and if there
// is one, validate it by fetching the profile. A credential the backend
// does not accept, for any reason, is discarded through the logout
// procedure. Only the first call does any work.
func (m *Manager) Init(ctx context.Context) Snapshot {
	ctx, span := m.tracer.Start(ctx, "session.Init")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.loading.Store(false)

	if m.initialized {
		return m.Snapshot()
	}
	m.initialized = true

	token, err := m.store.Load(ctx)
	if err != nil {
		m.logger.WithError(err).WarnContext(ctx, "stored credential unreadable, starting signed out")
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.WithError(clearErr).WarnContext(ctx, "failed to clear credential store")
		}
		m.publish(Snapshot{Status: StatusUnauthenticated})
		return m.Snapshot()
	}

	if token == "" {
		m.logger.DebugContext(ctx, "no stored credential")
		m.publish(Snapshot{Status: StatusUnauthenticated})
		return m.Snapshot()
	}

	// Attach the stored credential for the validation round trip.
	m.publish(Snapshot{Status: StatusInitializing, Credential: token})

	user, err := m.api.GetProfile(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "credential rejected")
		m.logger.WithError(err).WarnContext(ctx, "stored credential rejected, signing out")
		m.logoutLocked(ctx)
		return m.Snapshot()
	}

	identity := NewIdentity(*user)
	m.publish(Snapshot{Status: StatusAuthenticated, Credential: token, Identity: identity})
	span.SetAttributes(attribute.Int("hradmin.user_id", user.ID))
	m.logger.WithContext(ctx).Info("session restored", "user", user.Username, "roles", identity.Roles())
	return m.Snapshot()
}

// Login exchanges credentials for a bearer token. On success the token is
// persisted and attached to outbound requests before Login returns. On
// failure the session is unchanged.
func (m *Manager) Login(ctx context.Context, creds hrapi.Credentials) Result[*Identity] {
	ctx, span := m.tracer.Start(ctx, "session.Login")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.api.Login(ctx, creds)
	if err != nil {
		span.SetStatus(codes.Error, "login rejected")
		m.logger.WithError(err).DebugContext(ctx, "login failed", "username", creds.Username)
		return Fail[*Identity](hrapi.Message(err, MsgLoginFailed))
	}
	if resp.AccessToken == "" || resp.User == nil {
		span.SetStatus(codes.Error, "malformed login response")
		m.logger.WarnContext(ctx, "login response missing access_token or user")
		return Fail[*Identity](MsgLoginFailed)
	}

	if err := m.store.Save(ctx, resp.AccessToken); err != nil {
		span.SetStatus(codes.Error, "credential not saved")
		m.logger.WithError(err).WarnContext(ctx, "failed to persist credential")
		return Fail[*Identity](MsgCredentialNotSaved)
	}

	identity := NewIdentity(*resp.User)
	m.publish(Snapshot{Status: StatusAuthenticated, Credential: resp.AccessToken, Identity: identity})
	m.logger.DebugContext(ctx, "signed in", "user", resp.User.Username)
	return Ok(identity)
}

// Logout notifies the backend if a credential is held, then clears the
// stored credential and the session. It never fails and is safe to repeat.
func (m *Manager) Logout(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "session.Logout")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.logoutLocked(ctx)
}

func (m *Manager) logoutLocked(ctx context.Context) {
	if m.Credential() != "" {
		if err := m.api.Logout(ctx); err != nil {
			m.logger.WithError(err).WarnContext(ctx, "backend logout notification failed")
		}
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WithError(err).WarnContext(ctx, "failed to clear stored credential")
	}
	m.publish(Snapshot{Status: StatusUnauthenticated})
	m.logger.DebugContext(ctx, "signed out")
}

// Register creates an account. It does not sign in.
func (m *Manager) Register(ctx context.Context, reg hrapi.Registration) Result[hrapi.Payload] {
	ctx, span := m.tracer.Start(ctx, "session.Register")
	defer span.End()

	payload, err := m.api.Register(ctx, reg)
	return forward(payload, err, MsgRegistrationFailed)
}

// ForgotPassword asks the backend for a reset token. The payload may carry
// "reset_token" in demo deployments.
func (m *Manager) ForgotPassword(ctx context.Context, email string) Result[hrapi.Payload] {
	ctx, span := m.tracer.Start(ctx, "session.ForgotPassword")
	defer span.End()

	payload, err := m.api.ForgotPassword(ctx, email)
	return forward(payload, err, MsgForgotPasswordFailed)
}

// ResetPassword sets a new password with a reset token. The session is untouched.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) Result[hrapi.Payload] {
	ctx, span := m.tracer.Start(ctx, "session.ResetPassword")
	defer span.End()

	payload, err := m.api.ResetPassword(ctx, token, newPassword)
	return forward(payload, err, MsgResetPasswordFailed)
}

// ChangePassword changes the signed-in user's password. The current
// credential stays valid and the session is untouched.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) Result[hrapi.Payload] {
	ctx, span := m.tracer.Start(ctx, "session.ChangePassword")
	defer span.End()

	payload, err := m.api.ChangePassword(ctx, currentPassword, newPassword)
	return forward(payload, err, MsgChangePasswordFailed)
}

// UpdateProfile saves profile changes. On success the identity is replaced
// by the record the backend returned; the credential and status are kept.
func (m *Manager) UpdateProfile(ctx context.Context, update hrapi.ProfileUpdate) Result[*Identity] {
	ctx, span := m.tracer.Start(ctx, "session.UpdateProfile")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.api.UpdateProfile(ctx, update)
	if err != nil {
		span.SetStatus(codes.Error, "profile update rejected")
		return Fail[*Identity](hrapi.Message(err, MsgProfileUpdateFailed))
	}

	identity := NewIdentity(*user)
	if cur := m.Snapshot(); cur.Authenticated() {
		m.publish(Snapshot{Status: cur.Status, Credential: cur.Credential, Identity: identity})
	}
	return Ok(identity)
}

func forward(payload hrapi.Payload, err error, fallback string) Result[hrapi.Payload] {
	if err != nil {
		return Fail[hrapi.Payload](hrapi.Message(err, fallback))
	}
	return Ok(payload)
}

var _ hrapi.CredentialSource = (*Manager)(nil)
