// Package hrapi is the request-building layer in front of the HR backend's
// REST API. Every request reads the bearer credential from a CredentialSource
// at call time; the client holds no authentication state of its own.
package hrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/hradmin/internal/log"
)

const (
	// DefaultTimeout bounds a single round trip when no http.Client is supplied.
	DefaultTimeout = 30 * time.Second

	// RequestIDHeader correlates client log lines with backend access logs.
	RequestIDHeader = "X-Request-ID"
)

// CredentialSource supplies the bearer credential for the next request.
// An empty string means no Authorization header is sent.
type CredentialSource interface {
	Credential() string
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() string

// Credential implements CredentialSource.
func (f CredentialFunc) Credential() string { return f() }

// Client talks to the HR backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialSource
	limiter     *rate.Limiter
	userAgent   string
	logger      *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCredentialSource sets where bearer credentials come from.
func WithCredentialSource(src CredentialSource) Option {
	return func(c *Client) { c.credentials = src }
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the API rooted at baseURL (for example
// "http://localhost:5000/api"). Outbound requests go through an
// OpenTelemetry-instrumented transport.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		credentials: CredentialFunc(func() string { return "" }),
		userAgent:   "hradmin",
		logger:      log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentialSource rebinds the credential source. It must be called
// before the client is shared between goroutines.
func (c *Client) SetCredentialSource(src CredentialSource) {
	c.credentials = src
}

// BaseURL returns the API root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest builds and sends one request. The credential is read exactly
// once, here, so a request never carries a credential that was cleared
// before the call began.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, string, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", &TransportError{Method: method, URL: endpoint, Err: err}
		}
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("create %s %s request: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.credentials.Credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.DebugContext(ctx, "backend request", "method", method, "path", path, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, requestID, &TransportError{Method: method, URL: endpoint, Err: err}
	}
	return resp, requestID, nil
}

// call sends a request and decodes the JSON response into out (if non-nil).
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, requestID, err := c.doRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return parseResponse(resp, requestID, out)
}

func parseResponse(resp *http.Response, requestID string, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: resp.Request.Method, URL: resp.Request.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(data),
			RequestID:  requestID,
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// extractMessage pulls the human-readable message from an error body:
// the "error" field, else "message", else empty.
func extractMessage(data []byte) string {
	var body struct {
		Error   any `json:"error"`
		Message any `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if s, ok := body.Error.(string); ok && s != "" {
		return s
	}
	if s, ok := body.Message.(string); ok && s != "" {
		return s
	}
	return ""
}
