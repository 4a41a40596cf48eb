package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/ux"
)

// message is a plain backend acknowledgement.
type message struct {
	Message string `json:"message" yaml:"message"`
	// ResetToken is only set when the backend echoes one back.
	ResetToken string `json:"reset_token,omitempty" yaml:"reset_token,omitempty"`
}

func (m message) Text(*ux.FormatterOptions) string {
	if m.ResetToken == "" {
		return m.Message
	}
	return m.Message + "\nReset token: " + m.ResetToken
}

type userView struct {
	hrapi.User `yaml:",inline"`
}

func (v userView) Text(*ux.FormatterOptions) string {
	u := v.User
	return ux.KeyValues([][2]string{
		{"ID", strconv.Itoa(u.ID)},
		{"Username", u.Username},
		{"Email", u.Email},
		{"Name", u.FullName()},
		{"Active", yesNo(u.IsActive)},
		{"Roles", joinOrNone(roleNames(u.Roles))},
		{"Permissions", joinOrNone(u.Permissions)},
		{"Created", u.CreatedAt},
		{"Updated", u.UpdatedAt},
	})
}

type userList struct {
	hrapi.UserPage `yaml:",inline"`
}

func (v userList) Text(opts *ux.FormatterOptions) string {
	rows := make([][]string, 0, len(v.Users))
	for _, u := range v.Users {
		rows = append(rows, []string{
			strconv.Itoa(u.ID), u.Username, u.Email, u.FullName(),
			yesNo(u.IsActive), strings.Join(roleNames(u.Roles), ", "),
		})
	}
	return ux.Table(opts, []string{"ID", "USERNAME", "EMAIL", "NAME", "ACTIVE", "ROLES"}, rows) +
		fmt.Sprintf("\nPage %d of %d (%d users)", v.CurrentPage, max(v.Pages, 1), v.Total)
}

type roleView struct {
	hrapi.Role `yaml:",inline"`
}

func (v roleView) Text(*ux.FormatterOptions) string {
	names := make([]string, 0, len(v.Permissions))
	for _, p := range v.Permissions {
		names = append(names, p.Name)
	}
	return ux.KeyValues([][2]string{
		{"ID", strconv.Itoa(v.ID)},
		{"Name", v.Name},
		{"Description", v.Description},
		{"Permissions", joinOrNone(names)},
	})
}

type roleList []hrapi.Role

func (l roleList) Text(opts *ux.FormatterOptions) string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{strconv.Itoa(r.ID), r.Name, r.Description, strconv.Itoa(len(r.Permissions))})
	}
	return ux.Table(opts, []string{"ID", "NAME", "DESCRIPTION", "PERMISSIONS"}, rows)
}

type permissionView struct {
	hrapi.Permission `yaml:",inline"`
}

func (v permissionView) Text(*ux.FormatterOptions) string {
	return ux.KeyValues([][2]string{
		{"ID", strconv.Itoa(v.ID)},
		{"Name", v.Name},
		{"Description", v.Description},
	})
}

type permissionList []hrapi.Permission

func (l permissionList) Text(opts *ux.FormatterOptions) string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		rows = append(rows, []string{strconv.Itoa(p.ID), p.Name, p.Description})
	}
	return ux.Table(opts, []string{"ID", "NAME", "DESCRIPTION"}, rows)
}

// status describes the current session for 'auth status'.
type status struct {
	Status      string     `json:"status" yaml:"status"`
	APIURL      string     `json:"api_url" yaml:"api_url"`
	User        *string    `json:"user,omitempty" yaml:"user,omitempty"`
	Roles       []string   `json:"roles,omitempty" yaml:"roles,omitempty"`
	Permissions []string   `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func (s status) Text(*ux.FormatterOptions) string {
	pairs := [][2]string{{"Status", s.Status}, {"API", s.APIURL}}
	if s.User != nil {
		pairs = append(pairs,
			[2]string{"User", *s.User},
			[2]string{"Roles", joinOrNone(s.Roles)},
			[2]string{"Permissions", joinOrNone(s.Permissions)},
		)
	}
	if s.ExpiresAt != nil {
		pairs = append(pairs, [2]string{"Expires", s.ExpiresAt.Local().Format(time.RFC1123)})
	}
	return ux.KeyValues(pairs)
}

func roleNames(refs []hrapi.RoleRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Name)
	}
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
