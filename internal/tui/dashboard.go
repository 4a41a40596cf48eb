package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/session"
)

// Session is the part of the session manager the dashboard reads and drives.
type Session interface {
	Snapshot() session.Snapshot
	Logout(ctx context.Context)
	OnChange(fn func(session.Snapshot)) func()
}

// Directory loads the admin listings.
type Directory interface {
	ListUsers(ctx context.Context, page, perPage int) (*hrapi.UserPage, error)
	ListRoles(ctx context.Context) ([]hrapi.Role, error)
	ListPermissions(ctx context.Context) ([]hrapi.Permission, error)
}

// SnapshotMsg carries a session transition into the program.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

type usersMsg struct{ page *hrapi.UserPage }

type rolesMsg struct{ roles []hrapi.Role }

type permissionsMsg struct{ permissions []hrapi.Permission }

type loadErrMsg struct {
	screen string
	err    error
}

type focus int

const (
	focusNav focus = iota
	focusTable
)

// Model is the dashboard program state.
type Model struct {
	ctx     context.Context
	session Session
	dir     Directory

	snapshot session.Snapshot
	nav      []authz.NavItem
	cursor   int
	active   string
	focus    focus

	table       table.Model
	users       *hrapi.UserPage
	roles       []hrapi.Role
	permissions []hrapi.Permission
	page        int
	loading     bool
	err         error

	keys   keyMap
	help   help.Model
	styles Styles

	width     int
	height    int
	quitting  bool
	signedOut bool
}

// NewModel builds a dashboard over an initialized session.
func NewModel(ctx context.Context, sess Session, dir Directory) Model {
	t := table.New(table.WithFocused(false), table.WithHeight(12))
	t.SetStyles(tableStyles())

	m := Model{
		ctx:     ctx,
		session: sess,
		dir:     dir,
		active:  "dashboard",
		page:    1,
		table:   t,
		keys:    defaultKeys(),
		help:    help.New(),
		styles:  DefaultStyles(),
	}
	m.applySnapshot(sess.Snapshot())
	return m
}

// SignedOut reports whether the program ended because the session ended.
func (m Model) SignedOut() bool { return m.signedOut }

// Init initializes the dashboard (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case SnapshotMsg:
		if !msg.Snapshot.Authenticated() {
			m.signedOut = true
			m.quitting = true
			return m, tea.Quit
		}
		m.applySnapshot(msg.Snapshot)
		return m, nil

	case usersMsg:
		m.loading = false
		m.users = msg.page
		if m.active == "users" {
			m.showUsers()
		}
		return m, nil

	case rolesMsg:
		m.loading = false
		m.roles = msg.roles
		if m.active == "roles" {
			m.showRoles()
		}
		return m, nil

	case permissionsMsg:
		m.loading = false
		m.permissions = msg.permissions
		if m.active == "permissions" {
			m.showPermissions()
		}
		return m, nil

	case loadErrMsg:
		m.loading = false
		if msg.screen == m.active {
			m.err = msg.err
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		return m, m.logout()

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusNav && m.hasTable() {
			m.focus = focusTable
			m.table.Focus()
		} else {
			m.focus = focusNav
			m.table.Blur()
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		cmd := m.open(m.active)
		return m, cmd

	case key.Matches(msg, m.keys.Next):
		if m.active == "users" && m.users != nil && m.page < m.users.Pages {
			m.page++
			cmd := m.open("users")
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		if m.active == "users" && m.page > 1 {
			m.page--
			cmd := m.open("users")
			return m, cmd
		}
		return m, nil
	}

	if m.focus == focusTable {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.nav)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(m.nav) {
			m.active = m.nav[m.cursor].Key
			m.page = 1
			cmd := m.open(m.active)
			return m, cmd
		}
	}
	return m, nil
}

// applySnapshot recomputes the navigation from the identity s carries. A
// screen that is no longer permitted falls back to the dashboard.
func (m *Model) applySnapshot(s session.Snapshot) {
	m.snapshot = s
	m.nav = authz.Visible(s.Identity, authz.Navigation())

	found := false
	for _, item := range m.nav {
		if item.Key == m.active {
			found = true
			break
		}
	}
	if m.cursor >= len(m.nav) {
		m.cursor = max(len(m.nav)-1, 0)
	}
	if !found {
		m.active = "dashboard"
		m.cursor = 0
		m.focus = focusNav
		m.table.Blur()
	}
}

func (m *Model) open(screen string) tea.Cmd {
	m.err = nil
	ctx, dir := m.ctx, m.dir

	switch screen {
	case "users":
		if !m.snapshot.Identity.HasPermission(authz.UserRead) {
			return nil
		}
		m.loading = true
		page := m.page
		return func() tea.Msg {
			p, err := dir.ListUsers(ctx, page, hrapi.DefaultPerPage)
			if err != nil {
				return loadErrMsg{screen: "users", err: err}
			}
			return usersMsg{page: p}
		}
	case "roles":
		if !m.snapshot.Identity.HasPermission(authz.RoleRead) {
			return nil
		}
		m.loading = true
		return func() tea.Msg {
			roles, err := dir.ListRoles(ctx)
			if err != nil {
				return loadErrMsg{screen: "roles", err: err}
			}
			return rolesMsg{roles: roles}
		}
	case "permissions":
		if !m.snapshot.Identity.HasPermission(authz.PermissionRead) {
			return nil
		}
		m.loading = true
		return func() tea.Msg {
			perms, err := dir.ListPermissions(ctx)
			if err != nil {
				return loadErrMsg{screen: "permissions", err: err}
			}
			return permissionsMsg{permissions: perms}
		}
	}
	return nil
}

func (m Model) logout() tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		sess.Logout(ctx)
		return SnapshotMsg{Snapshot: sess.Snapshot()}
	}
}

func (m Model) hasTable() bool {
	switch m.active {
	case "users", "roles", "permissions":
		return true
	}
	return false
}

func (m *Model) showUsers() {
	m.table.SetRows(nil)
	m.table.SetColumns([]table.Column{
		{Title: "ID", Width: 4},
		{Title: "Username", Width: 14},
		{Title: "Name", Width: 20},
		{Title: "Email", Width: 26},
		{Title: "Roles", Width: 16},
		{Title: "Active", Width: 6},
	})
	var rows []table.Row
	if m.users != nil {
		for _, u := range m.users.Users {
			names := make([]string, len(u.Roles))
			for i, r := range u.Roles {
				names[i] = r.Name
			}
			rows = append(rows, table.Row{
				strconv.Itoa(u.ID), u.Username, u.FullName(), u.Email,
				strings.Join(names, ", "), yesNo(u.IsActive),
			})
		}
	}
	m.table.SetRows(rows)
}

func (m *Model) showRoles() {
	m.table.SetRows(nil)
	m.table.SetColumns([]table.Column{
		{Title: "ID", Width: 4},
		{Title: "Name", Width: 14},
		{Title: "Description", Width: 36},
		{Title: "Permissions", Width: 11},
	})
	rows := make([]table.Row, 0, len(m.roles))
	for _, r := range m.roles {
		rows = append(rows, table.Row{strconv.Itoa(r.ID), r.Name, r.Description, strconv.Itoa(len(r.Permissions))})
	}
	m.table.SetRows(rows)
}

func (m *Model) showPermissions() {
	m.table.SetRows(nil)
	m.table.SetColumns([]table.Column{
		{Title: "ID", Width: 4},
		{Title: "Name", Width: 18},
		{Title: "Description", Width: 40},
	})
	rows := make([]table.Row, 0, len(m.permissions))
	for _, p := range m.permissions {
		rows = append(rows, table.Row{strconv.Itoa(p.ID), p.Name, p.Description})
	}
	m.table.SetRows(rows)
}

// View renders the dashboard (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		if m.signedOut {
			return m.styles.Muted.Render("Signed out.") + "\n"
		}
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderNav(), m.styles.Content.Render(m.renderContent())))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.styles.Title.Render("HR Admin")
	if m.snapshot.Identity == nil {
		return title
	}
	u := m.snapshot.Identity.User()
	who := fmt.Sprintf("  %s (%s)", u.Username, strings.Join(m.snapshot.Identity.Roles(), ", "))
	return title + m.styles.Subtitle.Render(who)
}

func (m Model) renderNav() string {
	var b strings.Builder
	for i, item := range m.nav {
		line := item.Title
		if item.Key == m.active {
			line = m.styles.Active.Render("• " + line)
		} else {
			line = "  " + line
		}
		if i == m.cursor && m.focus == focusNav {
			line = m.styles.Highlighted.Render(line)
		}
		b.WriteString(line)
		if i < len(m.nav)-1 {
			b.WriteString("\n")
		}
	}
	if m.focus == focusNav {
		return m.styles.NavFocused.Render(b.String())
	}
	return m.styles.Nav.Render(b.String())
}

func (m Model) renderContent() string {
	if m.err != nil {
		var apiErr *hrapi.APIError
		msg := m.err.Error()
		if errors.As(m.err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return m.styles.Error.Render("Error: ") + msg
	}
	if m.loading {
		return m.styles.Muted.Render("Loading...")
	}

	switch m.active {
	case "users":
		return m.renderListing(authz.Users, m.users != nil, m.usersFooter())
	case "roles":
		return m.renderListing(authz.Roles, m.roles != nil, fmt.Sprintf("%d roles", len(m.roles)))
	case "permissions":
		return m.renderListing(authz.Permissions, m.permissions != nil, fmt.Sprintf("%d permissions", len(m.permissions)))
	case "profile":
		return m.renderProfile()
	default:
		return m.renderHome()
	}
}

func (m Model) renderListing(r authz.Resource, loaded bool, footer string) string {
	if !loaded {
		return m.styles.Muted.Render("Press r to load " + r.Name + ".")
	}
	return m.table.View() + "\n" + m.styles.Muted.Render(footer) + "\n" + m.renderActions(r)
}

func (m Model) usersFooter() string {
	if m.users == nil {
		return ""
	}
	return fmt.Sprintf("page %d of %d, %d users", m.users.CurrentPage, max(m.users.Pages, 1), m.users.Total)
}

func (m Model) renderActions(r authz.Resource) string {
	a := authz.ActionsFor(m.snapshot.Identity, r)
	var can []string
	if a.CanCreate {
		can = append(can, "create")
	}
	if a.CanEdit {
		can = append(can, "edit")
	}
	if a.CanDelete {
		can = append(can, "delete")
	}
	if len(can) == 0 {
		return m.styles.Muted.Render("read only")
	}
	return m.styles.Muted.Render("you may " + strings.Join(can, ", ") + " " + r.Name + " from the CLI")
}

func (m Model) renderHome() string {
	id := m.snapshot.Identity
	if id == nil {
		return ""
	}
	u := id.User()
	name := u.FullName()
	if name == "" {
		name = u.Username
	}

	var b strings.Builder
	b.WriteString(m.styles.Success.Render("Welcome, " + name))
	b.WriteString("\n\n")
	b.WriteString(m.row("Roles", strings.Join(id.Roles(), ", ")))
	b.WriteString(m.row("Permissions", strconv.Itoa(len(id.Permissions()))))
	b.WriteString(m.row("Screens", strconv.Itoa(len(m.nav))))
	return b.String()
}

func (m Model) renderProfile() string {
	id := m.snapshot.Identity
	if id == nil {
		return ""
	}
	u := id.User()

	var b strings.Builder
	b.WriteString(m.row("Username", u.Username))
	b.WriteString(m.row("Email", u.Email))
	b.WriteString(m.row("Name", u.FullName()))
	b.WriteString(m.row("Active", yesNo(u.IsActive)))
	b.WriteString(m.row("Roles", strings.Join(id.Roles(), ", ")))
	b.WriteString(m.row("Permissions", strings.Join(id.Permissions(), ", ")))
	return b.String()
}

func (m Model) row(label, value string) string {
	return m.styles.Label.Render(label) + value + "\n"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// snapshotRelay hands published snapshots to the program in publish order.
// push never blocks, since listeners run with the session lock held and the
// program may itself be waiting on the session.
type snapshotRelay struct {
	mu      sync.Mutex
	pending []session.Snapshot
	wake    chan struct{}
}

func newSnapshotRelay() *snapshotRelay {
	return &snapshotRelay{wake: make(chan struct{}, 1)}
}

func (r *snapshotRelay) push(s session.Snapshot) {
	r.mu.Lock()
	r.pending = append(r.pending, s)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *snapshotRelay) drain() []session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// forward sends queued snapshots to send until done is closed.
func (r *snapshotRelay) forward(done <-chan struct{}, send func(tea.Msg)) {
	for {
		select {
		case <-done:
			return
		case <-r.wake:
			for _, s := range r.drain() {
				send(SnapshotMsg{Snapshot: s})
			}
		}
	}
}

// RunDashboard runs the dashboard until the user quits, the session ends or
// ctx is cancelled. Session transitions from elsewhere re-render it.
func RunDashboard(ctx context.Context, sess Session, dir Directory, opts ...tea.ProgramOption) (Model, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(ctx, sess, dir), opts...)

	relay := newSnapshotRelay()
	unsubscribe := sess.OnChange(relay.push)
	done := make(chan struct{})
	go relay.forward(done, p.Send)
	defer func() {
		unsubscribe()
		close(done)
	}()

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return Model{}, ctx.Err()
		}
		return Model{}, fmt.Errorf("dashboard: %w", err)
	}
	m, _ := final.(Model)
	return m, nil
}
