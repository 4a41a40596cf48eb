package hrapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

type roleEnvelope struct {
	Role *Role `json:"role"`
}

type permissionEnvelope struct {
	Permission *Permission `json:"permission"`
}

// ListRoles returns every role with its permissions.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var resp struct {
		Roles []Role `json:"roles"`
	}
	if err := c.call(ctx, http.MethodGet, "/roles", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

// GetRole fetches one role.
func (c *Client) GetRole(ctx context.Context, id int) (*Role, error) {
	return c.roleCall(ctx, http.MethodGet, rolePath(id), nil)
}

// CreateRole creates a role. Name is required.
func (c *Client) CreateRole(ctx context.Context, in RoleInput) (*Role, error) {
	return c.roleCall(ctx, http.MethodPost, "/roles", in)
}

// UpdateRole changes the fields set in in. A non-nil PermissionIDs replaces
// the role's permission set.
func (c *Client) UpdateRole(ctx context.Context, id int, in RoleInput) (*Role, error) {
	return c.roleCall(ctx, http.MethodPut, rolePath(id), in)
}

// DeleteRole removes a role. The backend refuses while users hold it.
func (c *Client) DeleteRole(ctx context.Context, id int) error {
	return c.call(ctx, http.MethodDelete, rolePath(id), nil, nil, nil)
}

// AssignRolePermission grants a permission to a role.
func (c *Client) AssignRolePermission(ctx context.Context, roleID, permissionID int) (*Role, error) {
	return c.roleCall(ctx, http.MethodPost, rolePath(roleID)+"/permissions", map[string]int{"permission_id": permissionID})
}

// RemoveRolePermission revokes a permission from a role.
func (c *Client) RemoveRolePermission(ctx context.Context, roleID, permissionID int) (*Role, error) {
	return c.roleCall(ctx, http.MethodDelete, fmt.Sprintf("%s/permissions/%d", rolePath(roleID), permissionID), nil)
}

// ListPermissions returns the permission catalogue.
func (c *Client) ListPermissions(ctx context.Context) ([]Permission, error) {
	var resp struct {
		Permissions []Permission `json:"permissions"`
	}
	if err := c.call(ctx, http.MethodGet, "/permissions", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

// GetPermission fetches one permission.
func (c *Client) GetPermission(ctx context.Context, id int) (*Permission, error) {
	return c.permissionCall(ctx, http.MethodGet, permissionPath(id), nil)
}

// CreatePermission adds a permission to the catalogue.
func (c *Client) CreatePermission(ctx context.Context, in PermissionInput) (*Permission, error) {
	return c.permissionCall(ctx, http.MethodPost, "/permissions", in)
}

// UpdatePermission renames or re-describes a permission.
func (c *Client) UpdatePermission(ctx context.Context, id int, in PermissionInput) (*Permission, error) {
	return c.permissionCall(ctx, http.MethodPut, permissionPath(id), in)
}

// DeletePermission removes a permission. The backend refuses while roles hold it.
func (c *Client) DeletePermission(ctx context.Context, id int) error {
	return c.call(ctx, http.MethodDelete, permissionPath(id), nil, nil, nil)
}

func (c *Client) roleCall(ctx context.Context, method, path string, body any) (*Role, error) {
	var resp roleEnvelope
	if err := c.call(ctx, method, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Role == nil {
		return nil, &DecodeError{StatusCode: http.StatusOK, Err: errMissingField("role")}
	}
	return resp.Role, nil
}

func (c *Client) permissionCall(ctx context.Context, method, path string, body any) (*Permission, error) {
	var resp permissionEnvelope
	if err := c.call(ctx, method, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Permission == nil {
		return nil, &DecodeError{StatusCode: http.StatusOK, Err: errMissingField("permission")}
	}
	return resp.Permission, nil
}

func rolePath(id int) string {
	return "/roles/" + strconv.Itoa(id)
}

func permissionPath(id int) string {
	return "/permissions/" + strconv.Itoa(id)
}
