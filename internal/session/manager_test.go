package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hradmin/internal/credstore"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
)

// stubBackend records the credential attached to each call, read through
// the same CredentialSource the real client uses.
type stubBackend struct {
	mu    sync.Mutex
	creds hrapi.CredentialSource
	seen  []string

	login          func(hrapi.Credentials) (*hrapi.LoginResponse, error)
	logout         func() error
	profile        func(token string) (*hrapi.User, error)
	updateProfile  func(hrapi.ProfileUpdate) (*hrapi.User, error)
	forgotPassword func(string) (hrapi.Payload, error)
	resetPassword  func(string, string) (hrapi.Payload, error)
	changePassword func(string, string) (hrapi.Payload, error)
	register       func(hrapi.Registration) (hrapi.Payload, error)
}

func (b *stubBackend) record(name string) string {
	token := ""
	if b.creds != nil {
		token = b.creds.Credential()
	}
	b.mu.Lock()
	b.seen = append(b.seen, name+":"+token)
	b.mu.Unlock()
	return token
}

func (b *stubBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

func (b *stubBackend) Login(_ context.Context, c hrapi.Credentials) (*hrapi.LoginResponse, error) {
	b.record("login")
	return b.login(c)
}

func (b *stubBackend) Logout(context.Context) error {
	b.record("logout")
	if b.logout == nil {
		return nil
	}
	return b.logout()
}

func (b *stubBackend) GetProfile(context.Context) (*hrapi.User, error) {
	return b.profile(b.record("profile"))
}

func (b *stubBackend) UpdateProfile(_ context.Context, u hrapi.ProfileUpdate) (*hrapi.User, error) {
	b.record("update-profile")
	return b.updateProfile(u)
}

func (b *stubBackend) ForgotPassword(_ context.Context, email string) (hrapi.Payload, error) {
	b.record("forgot-password")
	return b.forgotPassword(email)
}

func (b *stubBackend) ResetPassword(_ context.Context, token, pw string) (hrapi.Payload, error) {
	b.record("reset-password")
	return b.resetPassword(token, pw)
}

func (b *stubBackend) ChangePassword(_ context.Context, cur, pw string) (hrapi.Payload, error) {
	b.record("change-password")
	return b.changePassword(cur, pw)
}

func (b *stubBackend) Register(_ context.Context, r hrapi.Registration) (hrapi.Payload, error) {
	b.record("register")
	return b.register(r)
}

func newTestManager(t *testing.T, backend *stubBackend, store credstore.Store) *Manager {
	t.Helper()
	m := New(backend, store)
	backend.creds = m
	return m
}

func alice() *hrapi.User {
	return &hrapi.User{
		ID:          1,
		Username:    "alice",
		Permissions: []string{"user_read"},
		Roles:       []hrapi.RoleRef{{ID: 1, Name: "HR"}},
	}
}

func rejected(status int, msg string) error {
	return &hrapi.APIError{StatusCode: status, Message: msg}
}

func assertConsistent(t *testing.T, s Snapshot) {
	t.Helper()
	authenticated := s.Status == StatusAuthenticated
	both := s.Credential != "" && s.Identity != nil
	assert.Equal(t, authenticated, both, "status=%s credential=%q identity=%v", s.Status, s.Credential, s.Identity != nil)
}

func TestStartupWithValidStoredCredential(t *testing.T) {
	store := credstore.NewMemoryStore("abc")
	backend := &stubBackend{
		profile: func(token string) (*hrapi.User, error) {
			if token != "abc" {
				return nil, rejected(http.StatusUnauthorized, "Missing Authorization Header")
			}
			return alice(), nil
		},
	}
	m := newTestManager(t, backend, store)

	assert.Equal(t, StatusInitializing, m.Status())
	assert.True(t, m.Loading())

	snap := m.Init(context.Background())

	assert.False(t, m.Loading())
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Equal(t, "abc", snap.Credential)
	assert.True(t, m.HasPermission("user_read"))
	assert.True(t, m.HasRole("HR"))
	assert.False(t, m.HasRole("Admin"))
	assert.Equal(t, []string{"profile:abc"}, backend.calls())
	assertConsistent(t, snap)
}

func TestStartupWithoutStoredCredential(t *testing.T) {
	backend := &stubBackend{}
	m := newTestManager(t, backend, credstore.NewMemoryStore(""))

	snap := m.Init(context.Background())

	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Identity)
	assert.False(t, m.Loading())
	assert.Empty(t, backend.calls(), "no network call without a credential")
}

func TestStartupWithRejectedCredential(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"expired token", rejected(http.StatusUnauthorized, "Token has expired")},
		{"server error", rejected(http.StatusInternalServerError, "")},
		{"unreachable", &hrapi.TransportError{Method: "GET", URL: "http://localhost:5000/api/auth/profile", Err: fmt.Errorf("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credstore.NewMemoryStore("stale")
			backend := &stubBackend{
				profile: func(string) (*hrapi.User, error) { return nil, tt.err },
				logout:  func() error { return rejected(http.StatusUnauthorized, "Token has expired") },
			}
			m := newTestManager(t, backend, store)

			snap := m.Init(context.Background())

			assert.Equal(t, StatusUnauthenticated, snap.Status)
			assert.Empty(t, snap.Credential)
			assert.Nil(t, snap.Identity)
			assert.Empty(t, store.Token(), "stored credential must be removed")
			assert.False(t, m.HasPermission("user_read"))
			assert.Equal(t, []string{"profile:stale", "logout:stale"}, backend.calls())
		})
	}
}

func TestStartupWithUnreadableStore(t *testing.T) {
	store := credstore.NewMemoryStore("abc")
	store.Fail = fmt.Errorf("permission denied")
	m := newTestManager(t, &stubBackend{}, store)

	snap := m.Init(context.Background())

	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.False(t, m.Loading())
}

func TestInitRunsOnce(t *testing.T) {
	calls := 0
	backend := &stubBackend{
		profile: func(string) (*hrapi.User, error) {
			calls++
			return alice(), nil
		},
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore("abc"))

	m.Init(context.Background())
	m.Init(context.Background())

	assert.Equal(t, 1, calls)
}

func TestLoginSuccess(t *testing.T) {
	store := credstore.NewMemoryStore("")
	backend := &stubBackend{
		login: func(c hrapi.Credentials) (*hrapi.LoginResponse, error) {
			return &hrapi.LoginResponse{
				AccessToken: "tok-1",
				User: &hrapi.User{
					ID:          3,
					Username:    c.Username,
					Permissions: []string{"user_read", "role_read"},
					Roles:       []hrapi.RoleRef{{ID: 3, Name: "Employee"}},
				},
			}, nil
		},
		profile: func(token string) (*hrapi.User, error) { return alice(), nil },
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	res := m.Login(context.Background(), hrapi.Credentials{Username: "john_doe", Password: "employee123"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "john_doe", res.Data.User().Username)
	assert.Equal(t, StatusAuthenticated, m.Status())
	assert.Equal(t, "tok-1", store.Token(), "credential persisted before Login returns")
	assert.Equal(t, []string{"role_read", "user_read"}, m.Identity().Permissions())
	assert.True(t, m.HasPermission("role_read"))
	assert.False(t, m.HasPermission("user_write"))
	assertConsistent(t, m.Snapshot())

	// The very next request carries the new credential.
	_, _ = backend.GetProfile(context.Background())
	assert.Equal(t, "profile:tok-1", backend.calls()[len(backend.calls())-1])
}

func TestLoginFailureLeavesSessionUnchanged(t *testing.T) {
	store := credstore.NewMemoryStore("")
	backend := &stubBackend{
		login: func(hrapi.Credentials) (*hrapi.LoginResponse, error) {
			return nil, rejected(http.StatusUnauthorized, "Invalid credentials")
		},
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	res := m.Login(context.Background(), hrapi.Credentials{Username: "bob", Password: "wrong"})

	assert.Equal(t, Result[*Identity]{Success: false, Error: "Invalid credentials"}, res)
	assert.Equal(t, StatusUnauthenticated, m.Status())
	assert.Empty(t, store.Token())
}

func TestLoginFailureFallbackMessages(t *testing.T) {
	tests := []struct {
		name string
		resp *hrapi.LoginResponse
		err  error
		want string
	}{
		{"malformed error body", nil, rejected(http.StatusBadRequest, ""), MsgLoginFailed},
		{"unreachable", nil, &hrapi.TransportError{Err: fmt.Errorf("timeout")}, MsgLoginFailed},
		{"no token", &hrapi.LoginResponse{User: alice()}, nil, MsgLoginFailed},
		{"no user", &hrapi.LoginResponse{AccessToken: "t"}, nil, MsgLoginFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubBackend{
				login: func(hrapi.Credentials) (*hrapi.LoginResponse, error) { return tt.resp, tt.err },
			}
			m := newTestManager(t, backend, credstore.NewMemoryStore(""))
			m.Init(context.Background())

			res := m.Login(context.Background(), hrapi.Credentials{Username: "x", Password: "y"})

			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.Equal(t, StatusUnauthenticated, m.Status())
		})
	}
}

func TestLoginWhenCredentialCannotBeSaved(t *testing.T) {
	store := credstore.NewMemoryStore("")
	backend := &stubBackend{
		login: func(hrapi.Credentials) (*hrapi.LoginResponse, error) {
			return &hrapi.LoginResponse{AccessToken: "tok", User: alice()}, nil
		},
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	store.Fail = fmt.Errorf("read-only file system")
	res := m.Login(context.Background(), hrapi.Credentials{Username: "alice", Password: "pw"})

	assert.False(t, res.Success)
	assert.Equal(t, MsgCredentialNotSaved, res.Error)
	assert.Equal(t, StatusUnauthenticated, m.Status())
	assert.Empty(t, m.Credential())
}

func TestLogoutClearsEverything(t *testing.T) {
	store := credstore.NewMemoryStore("abc")
	backend := &stubBackend{
		profile: func(string) (*hrapi.User, error) { return alice(), nil },
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())
	require.True(t, m.HasPermission("user_read"))

	m.Logout(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, Snapshot{Status: StatusUnauthenticated}, snap)
	assert.Empty(t, store.Token())
	for _, p := range []string{"user_read", "user_write", "role_read", ""} {
		assert.False(t, m.HasPermission(p), p)
	}
	assert.False(t, m.HasRole("HR"))

	// The logout notification itself still carried the credential.
	assert.Equal(t, []string{"profile:abc", "logout:abc"}, backend.calls())
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := credstore.NewMemoryStore("abc")
	backend := &stubBackend{
		profile: func(string) (*hrapi.User, error) { return alice(), nil },
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	m.Logout(context.Background())
	once := m.Snapshot()
	m.Logout(context.Background())
	twice := m.Snapshot()

	assert.Equal(t, once, twice)
	assert.Equal(t, Snapshot{Status: StatusUnauthenticated}, twice)
	assert.Equal(t, []string{"profile:abc", "logout:abc"}, backend.calls(), "no backend call without a credential")
}

func TestLogoutSurvivesBackendAndStoreFailures(t *testing.T) {
	store := credstore.NewMemoryStore("abc")
	backend := &stubBackend{
		profile: func(string) (*hrapi.User, error) { return alice(), nil },
		logout:  func() error { return &hrapi.TransportError{Err: fmt.Errorf("connection refused")} },
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	store.Fail = fmt.Errorf("disk gone")
	m.Logout(context.Background())

	assert.Equal(t, StatusUnauthenticated, m.Status())
	assert.Empty(t, m.Credential())
}

func TestUpdateProfileReplacesIdentity(t *testing.T) {
	store := credstore.NewMemoryStore("abc")
	backend := &stubBackend{
		profile: func(string) (*hrapi.User, error) { return alice(), nil },
		updateProfile: func(u hrapi.ProfileUpdate) (*hrapi.User, error) {
			return &hrapi.User{ID: 1, Username: "alice", FirstName: *u.FirstName, Permissions: []string{"role_read"}}, nil
		},
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	res := m.UpdateProfile(context.Background(), hrapi.ProfileUpdate{FirstName: hrapi.Ptr("Alicia")})

	require.True(t, res.Success)
	assert.Equal(t, "Alicia", m.Identity().User().FirstName)
	assert.Equal(t, "abc", m.Credential(), "credential untouched")
	assert.Equal(t, StatusAuthenticated, m.Status())
	assert.True(t, m.HasPermission("role_read"))
	assert.False(t, m.HasPermission("user_read"), "identity replaced wholesale")
	assert.False(t, m.HasRole("HR"))
}

func TestUpdateProfileFailure(t *testing.T) {
	backend := &stubBackend{
		profile: func(string) (*hrapi.User, error) { return alice(), nil },
		updateProfile: func(hrapi.ProfileUpdate) (*hrapi.User, error) {
			return nil, rejected(http.StatusBadRequest, "Email already exists")
		},
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore("abc"))
	m.Init(context.Background())
	before := m.Snapshot()

	res := m.UpdateProfile(context.Background(), hrapi.ProfileUpdate{Email: hrapi.Ptr("hr@hrms.com")})

	assert.Equal(t, "Email already exists", res.Error)
	assert.Equal(t, before, m.Snapshot())
}

func TestForgotAndResetPasswordDoNotTouchSession(t *testing.T) {
	backend := &stubBackend{
		forgotPassword: func(email string) (hrapi.Payload, error) {
			assert.Equal(t, "x@y.com", email)
			return hrapi.Payload{"reset_token": "T123"}, nil
		},
		resetPassword: func(token, pw string) (hrapi.Payload, error) {
			assert.Equal(t, "T123", token)
			assert.Equal(t, "newpass1", pw)
			return hrapi.Payload{"message": "Password reset successfully"}, nil
		},
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore(""))
	m.Init(context.Background())
	before := m.Snapshot()

	forgot := m.ForgotPassword(context.Background(), "x@y.com")
	assert.Equal(t, Result[hrapi.Payload]{Success: true, Data: hrapi.Payload{"reset_token": "T123"}}, forgot)

	reset := m.ResetPassword(context.Background(), forgot.Data.String("reset_token"), "newpass1")
	assert.True(t, reset.Success)

	assert.Equal(t, before, m.Snapshot())
	assert.Equal(t, StatusUnauthenticated, m.Status())
}

func TestForwardingFailures(t *testing.T) {
	fail := func(msg string) error { return rejected(http.StatusBadRequest, msg) }
	backend := &stubBackend{
		register:       func(hrapi.Registration) (hrapi.Payload, error) { return nil, fail("Username already exists") },
		forgotPassword: func(string) (hrapi.Payload, error) { return nil, fail("Email is required") },
		resetPassword:  func(string, string) (hrapi.Payload, error) { return nil, fail("") },
		changePassword: func(string, string) (hrapi.Payload, error) { return nil, fail("Current password is incorrect") },
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore(""))
	ctx := context.Background()

	assert.Equal(t, "Username already exists", m.Register(ctx, hrapi.Registration{Username: "admin"}).Error)
	assert.Equal(t, "Email is required", m.ForgotPassword(ctx, "").Error)
	assert.Equal(t, MsgResetPasswordFailed, m.ResetPassword(ctx, "bad", "newpass1").Error)
	assert.Equal(t, "Current password is incorrect", m.ChangePassword(ctx, "nope", "newpass1").Error)
}

func TestRegisterDoesNotSignIn(t *testing.T) {
	backend := &stubBackend{
		register: func(r hrapi.Registration) (hrapi.Payload, error) {
			return hrapi.Payload{"message": "User registered successfully"}, nil
		},
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore(""))
	m.Init(context.Background())

	res := m.Register(context.Background(), hrapi.Registration{Username: "new", Email: "new@hrms.com", Password: "secret1"})

	assert.True(t, res.Success)
	assert.Equal(t, "User registered successfully", res.Data.Message())
	assert.Equal(t, StatusUnauthenticated, m.Status())
}

func TestChangePasswordKeepsSession(t *testing.T) {
	backend := &stubBackend{
		profile:        func(string) (*hrapi.User, error) { return alice(), nil },
		changePassword: func(string, string) (hrapi.Payload, error) { return hrapi.Payload{}, nil },
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore("abc"))
	m.Init(context.Background())
	before := m.Snapshot()

	res := m.ChangePassword(context.Background(), "hr123", "newpass1")

	assert.True(t, res.Success)
	assert.Equal(t, before, m.Snapshot())
}

func TestQueriesWhenUnauthenticated(t *testing.T) {
	m := newTestManager(t, &stubBackend{}, credstore.NewMemoryStore(""))

	assert.False(t, m.HasPermission("user_read"))
	assert.False(t, m.HasRole("Admin"))
	assert.Empty(t, m.Identity().Permissions())
	assert.Empty(t, m.Identity().Roles())
}

func TestIdentityDefaultsToEmptySets(t *testing.T) {
	id := NewIdentity(hrapi.User{ID: 5, Username: "nobody"})

	assert.NotNil(t, id.Permissions())
	assert.Empty(t, id.Permissions())
	assert.False(t, id.HasPermission("user_read"))
	assert.False(t, id.HasRole("Employee"))
}

func TestOnChange(t *testing.T) {
	backend := &stubBackend{
		login: func(hrapi.Credentials) (*hrapi.LoginResponse, error) {
			return &hrapi.LoginResponse{AccessToken: "t", User: alice()}, nil
		},
	}
	m := newTestManager(t, backend, credstore.NewMemoryStore(""))

	var statuses []Status
	unsubscribe := m.OnChange(func(s Snapshot) { statuses = append(statuses, s.Status) })

	m.Init(context.Background())
	m.Login(context.Background(), hrapi.Credentials{Username: "alice", Password: "pw"})
	unsubscribe()
	m.Logout(context.Background())

	assert.Equal(t, []Status{StatusUnauthenticated, StatusAuthenticated}, statuses)
}

func TestConcurrentLoginLogoutKeepsSnapshotConsistent(t *testing.T) {
	store := credstore.NewMemoryStore("")
	backend := &stubBackend{
		login: func(c hrapi.Credentials) (*hrapi.LoginResponse, error) {
			return &hrapi.LoginResponse{AccessToken: "tok-" + c.Username, User: alice()}, nil
		},
	}
	m := newTestManager(t, backend, store)
	m.Init(context.Background())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				assertConsistent(t, m.Snapshot())
			}
		}
	}()

	var writers sync.WaitGroup
	for i := 0; i < 20; i++ {
		writers.Add(2)
		go func(i int) {
			defer writers.Done()
			m.Login(context.Background(), hrapi.Credentials{Username: fmt.Sprint(i), Password: "pw"})
		}(i)
		go func() {
			defer writers.Done()
			m.Logout(context.Background())
		}()
	}
	writers.Wait()
	close(stop)
	wg.Wait()

	final := m.Snapshot()
	assertConsistent(t, final)
	assert.Equal(t, final.Credential, store.Token(), "store and snapshot agree after the last writer")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "initializing", StatusInitializing.String())
	assert.Equal(t, "unauthenticated", StatusUnauthenticated.String())
	assert.Equal(t, "authenticated", StatusAuthenticated.String())
	assert.Equal(t, "unknown", Status(42).String())
}
