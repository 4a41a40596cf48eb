package authz

// NavItem is one screen of the admin front end. An empty Permission means
// any signed-in user may open it.
type NavItem struct {
	Key        string
	Title      string
	Permission string
}

// Navigation is the full screen list in display order.
func Navigation() []NavItem {
	return []NavItem{
		{Key: "dashboard", Title: "Dashboard"},
		{Key: "users", Title: "Users", Permission: UserRead},
		{Key: "roles", Title: "Roles", Permission: RoleRead},
		{Key: "permissions", Title: "Permissions", Permission: PermissionRead},
		{Key: "profile", Title: "Profile"},
	}
}

// Visible filters items down to those the identity may open.
func Visible(c Checker, items []NavItem) []NavItem {
	out := make([]NavItem, 0, len(items))
	for _, item := range items {
		if item.Permission == "" || c.HasPermission(item.Permission) {
			out = append(out, item)
		}
	}
	return out
}
