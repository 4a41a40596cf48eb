package hrapi

import (
	"context"
	"net/http"
)

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

type userEnvelope struct {
	Message string `json:"message,omitempty"`
	User    *User  `json:"user"`
}

// Login exchanges a username (or email) and password for a bearer credential.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. The response is returned as-is.
func (c *Client) Register(ctx context.Context, reg Registration) (Payload, error) {
	var resp Payload
	if err := c.call(ctx, http.MethodPost, "/auth/register", nil, reg, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Logout revokes the current credential server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// GetProfile returns the user the current credential belongs to.
func (c *Client) GetProfile(ctx context.Context) (*User, error) {
	return c.userCall(ctx, http.MethodGet, "/auth/profile", nil)
}

// UpdateProfile changes the signed-in user's record and returns the stored result.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	return c.userCall(ctx, http.MethodPut, "/auth/profile", update)
}

// ForgotPassword asks the backend to issue a reset token. In demo deployments
// the token is echoed back as "reset_token".
func (c *Client) ForgotPassword(ctx context.Context, email string) (Payload, error) {
	return c.payloadCall(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email})
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (Payload, error) {
	return c.payloadCall(ctx, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": newPassword,
	})
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) (Payload, error) {
	return c.payloadCall(ctx, http.MethodPost, "/auth/change-password", map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	})
}

func (c *Client) payloadCall(ctx context.Context, method, path string, body any) (Payload, error) {
	var resp Payload
	if err := c.call(ctx, method, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = Payload{}
	}
	return resp, nil
}

func (c *Client) userCall(ctx context.Context, method, path string, body any) (*User, error) {
	var resp userEnvelope
	if err := c.call(ctx, method, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &DecodeError{StatusCode: http.StatusOK, Err: errMissingField("user")}
	}
	return resp.User, nil
}
