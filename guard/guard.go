// Package guard decides whether a role-scoped page may render for the
// current session state, or where to redirect instead.
//
// Evaluate is a pure function of the session snapshot and the route's
// required role; the framework adapters under middleware/ turn its
// decisions into HTTP responses.
package guard

import (
	authkit "github.com/edupoints/authkit-go"
	"github.com/edupoints/authkit-go/roles"
)

// Action is the outcome of a guard evaluation.
type Action int

const (
	// ActionWait: the session is still loading; render a neutral loading
	// state and do not redirect yet.
	ActionWait Action = iota

	// ActionAllow: render the requested page.
	ActionAllow

	// ActionRedirect: send the client to Decision.Location.
	ActionRedirect
)

// Reason explains a redirect, so adapters can decorate it (e.g. attach the
// originally requested URL to a login redirect).
type Reason int

const (
	ReasonNone Reason = iota
	ReasonAnonymous
	ReasonNoDashboard
	ReasonRoleMismatch
)

// Decision is the guard's verdict for one navigation.
type Decision struct {
	Action   Action
	Location string
	Reason   Reason
}

// Config holds the redirect targets and the role route table.
type Config struct {
	LoginPath        string // default "/login"
	UnauthorizedPath string // default "/unauthorized"
	Table            roles.Table
}

func (c Config) withDefaults() Config {
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.UnauthorizedPath == "" {
		c.UnauthorizedPath = "/unauthorized"
	}
	if c.Table == nil {
		c.Table = roles.DefaultTable()
	}
	return c
}

// State is the session snapshot the guard decides on.
type State struct {
	Loading       bool
	Authenticated bool
	ActiveRole    authkit.Role
}

// Evaluate applies the guard rules in order: wait while loading, login for
// anonymous sessions, unauthorized when the active role has no resolvable
// dashboard, the active role's own dashboard when it does not match the
// required role, otherwise allow. A role never renders another role's page.
func Evaluate(st State, required authkit.Role, cfg Config) Decision {
	cfg = cfg.withDefaults()

	if st.Loading {
		return Decision{Action: ActionWait}
	}
	if !st.Authenticated {
		return Decision{Action: ActionRedirect, Location: cfg.LoginPath, Reason: ReasonAnonymous}
	}

	routes, ok := cfg.Table[st.ActiveRole]
	if !ok || routes.Dashboard == "" {
		return Decision{Action: ActionRedirect, Location: cfg.UnauthorizedPath, Reason: ReasonNoDashboard}
	}
	if st.ActiveRole != required {
		return Decision{Action: ActionRedirect, Location: routes.Dashboard, Reason: ReasonRoleMismatch}
	}
	return Decision{Action: ActionAllow}
}

// Snapshot builds the guard input from a manager. A session mid-refresh
// still counts as authenticated; teardown on refresh failure flips it.
func Snapshot(m *authkit.Manager) State {
	s := m.State()
	return State{
		Loading:       s == authkit.StateLoading,
		Authenticated: s == authkit.StateAuthenticated || s == authkit.StateRefreshing,
		ActiveRole:    m.ActiveRole(),
	}
}
