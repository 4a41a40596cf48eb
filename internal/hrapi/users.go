package hrapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPerPage matches the backend's default page size.
const DefaultPerPage = 10

type errMissingField string

func (e errMissingField) Error() string {
	return fmt.Sprintf("response has no %q field", string(e))
}

// ListUsers returns one page of users. Non-positive arguments use the
// backend defaults.
func (c *Client) ListUsers(ctx context.Context, page, perPage int) (*UserPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}

	var resp UserPage
	if err := c.call(ctx, http.MethodGet, "/users", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetUser fetches one user with roles and permissions.
func (c *Client) GetUser(ctx context.Context, id int) (*User, error) {
	return c.userCall(ctx, http.MethodGet, userPath(id), nil)
}

// CreateUser creates a user. Username, email and password are required.
func (c *Client) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	return c.userCall(ctx, http.MethodPost, "/users", in)
}

// UpdateUser changes the fields set in in.
func (c *Client) UpdateUser(ctx context.Context, id int, in UserInput) (*User, error) {
	return c.userCall(ctx, http.MethodPut, userPath(id), in)
}

// DeleteUser removes a user. The backend refuses to delete the caller's own account.
func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.call(ctx, http.MethodDelete, userPath(id), nil, nil, nil)
}

// AssignUserRole adds a role to a user and returns the updated user.
func (c *Client) AssignUserRole(ctx context.Context, userID, roleID int) (*User, error) {
	return c.userCall(ctx, http.MethodPost, userPath(userID)+"/roles", map[string]int{"role_id": roleID})
}

// RemoveUserRole removes a role from a user and returns the updated user.
func (c *Client) RemoveUserRole(ctx context.Context, userID, roleID int) (*User, error) {
	return c.userCall(ctx, http.MethodDelete, fmt.Sprintf("%s/roles/%d", userPath(userID), roleID), nil)
}

func userPath(id int) string {
	return "/users/" + strconv.Itoa(id)
}
