// Package hrtest runs an in-process HR backend for tests. It serves the same
// routes, payload shapes and error messages as the real service, backed by
// memory and seeded with the standard roles and accounts.
package hrtest

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/hradmin/internal/metrics"
)

// Request is one request the server received.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

type failure struct {
	status  int
	message string
}

// Server is a running fake backend.
type Server struct {
	srv      *httptest.Server
	secret   []byte
	ttl      time.Duration
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	mu         sync.Mutex
	data       *store
	requests   []Request
	failures   map[string]failure
	down       bool
	omitToken  bool
	loginCalls int
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets how long issued credentials stay valid.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// NewServer starts a seeded backend. Close it when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		secret:   []byte("hrtest-" + uuid.NewString()),
		ttl:      24 * time.Hour,
		data:     newStore(),
		failures: make(map[string]failure),
	}
	s.registry, s.metrics = metrics.NewRegistry()
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// URL is the API root, ending in /api.
func (s *Server) URL() string { return s.srv.URL + "/api" }

// MetricsURL serves the backend's Prometheus metrics.
func (s *Server) MetricsURL() string { return s.srv.URL + "/metrics" }

// Metrics exposes the collectors for assertions with prometheus/testutil.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// Requests returns what the server has received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns received requests matching method and path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Fail makes method+path answer status with an error message until cleared
// with a zero status.
func (s *Server) Fail(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = failure{status: status, message: message}
}

// SetDown makes every route answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// OmitLoginToken makes successful logins leave out access_token.
func (s *Server) OmitLoginToken(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitToken = omit
}

// IssueToken mints a valid credential for username, as login would.
func (s *Server) IssueToken(username string) (string, error) {
	token, err := s.issue(username, s.ttl)
	if err == nil {
		s.metrics.ActiveTokens.Inc()
	}
	return token, err
}

// ExpiredToken mints a credential for username that expired an hour ago.
func (s *Server) ExpiredToken(username string) (string, error) {
	return s.issue(username, -time.Hour)
}

func (s *Server) issue(username string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	u := s.data.userByLogin(username)
	s.mu.Unlock()
	if u == nil {
		return "", fmt.Errorf("hrtest: no user %q", username)
	}
	return s.sign(u.ID, ttl)
}

func (s *Server) sign(userID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Revoked reports whether the token's jti has been logged out.
func (s *Server) Revoked(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.revoked[claims.ID]
}

// LoginCalls counts login attempts.
func (s *Server) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// SetUserActive toggles an account without going through the API.
func (s *Server) SetUserActive(username string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.data.userByLogin(username); u != nil {
		u.Active = active
	}
}

// DeleteUser removes an account without going through the API.
func (s *Server) DeleteUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.data.userByLogin(username); u != nil {
		delete(s.data.users, u.ID)
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Get("/metrics", metrics.HandlerFor(s.registry).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Post("/forgot-password", s.forgotPassword)
			r.Post("/reset-password", s.resetPassword)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Post("/logout", s.logout)
				r.Get("/profile", s.getProfile)
				r.Put("/profile", s.updateProfile)
				r.Post("/change-password", s.changePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.With(s.require("user_read")).Get("/users", s.listUsers)
			r.With(s.require("user_write")).Post("/users", s.createUser)
			r.With(s.require("user_read")).Get("/users/{id}", s.getUser)
			r.With(s.require("user_write")).Put("/users/{id}", s.updateUser)
			r.With(s.require("user_delete")).Delete("/users/{id}", s.deleteUser)
			r.With(s.require("user_write")).Post("/users/{id}/roles", s.assignRole)
			r.With(s.require("user_write")).Delete("/users/{id}/roles/{roleID}", s.removeRole)

			r.With(s.require("role_read")).Get("/roles", s.listRoles)
			r.With(s.require("role_write")).Post("/roles", s.createRole)
			r.With(s.require("role_read")).Get("/roles/{id}", s.getRole)
			r.With(s.require("role_write")).Put("/roles/{id}", s.updateRole)
			r.With(s.require("role_delete")).Delete("/roles/{id}", s.deleteRole)
			r.With(s.require("role_write")).Post("/roles/{id}/permissions", s.assignPermission)
			r.With(s.require("role_write")).Delete("/roles/{id}/permissions/{permissionID}", s.removePermission)

			r.With(s.require("permission_read")).Get("/permissions", s.listPermissions)
			r.With(s.require("permission_write")).Post("/permissions", s.createPermission)
			r.With(s.require("permission_read")).Get("/permissions/{id}", s.getPermission)
			r.With(s.require("permission_write")).Put("/permissions/{id}", s.updatePermission)
			r.With(s.require("permission_delete")).Delete("/permissions/{id}", s.deletePermission)
		})
	})
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		f, failing := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		switch {
		case down:
			writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		case failing:
			writeError(w, f.status, f.message)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type ctxKey struct{}

type identity struct {
	userID int
	jti    string
}

// authenticate checks the bearer token the way the backend's JWT layer does.
// Its rejections use the "msg" key, not "error".
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.metrics.AuthRejections.WithLabelValues("missing").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			s.metrics.AuthRejections.WithLabelValues("expired").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
			return
		case err != nil:
			s.metrics.AuthRejections.WithLabelValues("invalid").Inc()
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"msg": "Signature verification failed"})
			return
		}

		s.mu.Lock()
		revoked := s.data.revoked[claims.ID]
		s.mu.Unlock()
		if revoked {
			s.metrics.AuthRejections.WithLabelValues("revoked").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has been revoked"})
			return
		}

		id, _ := strconv.Atoi(claims.Subject)
		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), identity{userID: id, jti: claims.ID})))
	})
}

func (s *Server) require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityFrom(r.Context())
			s.mu.Lock()
			u := s.data.users[id.userID]
			allowed := u != nil && s.data.hasPermission(u, permission)
			s.mu.Unlock()

			switch {
			case u == nil:
				writeError(w, http.StatusNotFound, "User not found")
			case !allowed:
				s.metrics.PermissionDenials.WithLabelValues(permission).Inc()
				writeError(w, http.StatusForbidden, "Insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func resetToken() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
