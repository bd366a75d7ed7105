// Package roles resolves which roles an account can operate as and where
// each role lands after login.
//
// Resolution is a pure function of the user's role tags and the role
// profiles that exist for them. The route table is plain data supplied as
// configuration, not behavior.
package roles

import (
	authkit "github.com/edupoints/authkit-go"
)

// Routes holds the navigation targets for one role. An empty Setup means
// the role is usable without a separate profile record.
type Routes struct {
	Label     string
	Dashboard string
	Setup     string
}

// Table maps each role to its routes.
type Table map[authkit.Role]Routes

// DefaultTable covers the six platform roles. Platform admins have no
// profile-creation step.
func DefaultTable() Table {
	return Table{
		authkit.RoleStudent:       {Label: "Student", Dashboard: "/student/dashboard", Setup: "/student/create-profile"},
		authkit.RoleParent:        {Label: "Parent", Dashboard: "/parent/dashboard", Setup: "/parent/create-profile"},
		authkit.RoleTeacher:       {Label: "Teacher", Dashboard: "/teacher/dashboard", Setup: "/teacher/create-profile"},
		authkit.RoleSchoolAdmin:   {Label: "School Admin", Dashboard: "/school-admin/dashboard", Setup: "/school-admin/create-profile"},
		authkit.RoleSocialWorker:  {Label: "Social Worker", Dashboard: "/social-worker/dashboard", Setup: "/social-worker/create-profile"},
		authkit.RolePlatformAdmin: {Label: "Platform Admin", Dashboard: "/admin/dashboard"},
	}
}

// Option is one way the user may proceed after login.
type Option struct {
	Label string
	Role  authkit.Role
	Route string

	// SetupRequired marks a role whose profile must be created before the
	// role can become the active role. Route then points at the
	// profile-creation flow instead of the dashboard.
	SetupRequired bool
}

// Resolve maps the user's role tags and existing profiles to the ordered
// list of options. Order follows user.Roles exactly; duplicates are
// dropped; same input always yields the same output. Zero resolvable
// options is an error, never an empty success.
func Resolve(user *authkit.User, profiles []authkit.Profile, table Table) ([]Option, error) {
	if user == nil || len(user.Roles) == 0 {
		return nil, &authkit.RoleResolutionError{}
	}
	if table == nil {
		table = DefaultTable()
	}

	has := make(map[authkit.Role]bool, len(profiles))
	for _, p := range profiles {
		has[p.Role] = true
	}

	seen := make(map[authkit.Role]bool, len(user.Roles))
	opts := make([]Option, 0, len(user.Roles))
	for _, r := range user.Roles {
		if seen[r] {
			continue
		}
		seen[r] = true

		routes, ok := table[r]
		if !ok {
			continue
		}
		if has[r] || routes.Setup == "" {
			opts = append(opts, Option{Label: routes.Label, Role: r, Route: routes.Dashboard})
		} else {
			opts = append(opts, Option{Label: routes.Label, Role: r, Route: routes.Setup, SetupRequired: true})
		}
	}

	if len(opts) == 0 {
		return nil, &authkit.RoleResolutionError{UserID: user.ID}
	}
	return opts, nil
}

// AutoSelect returns the single option when no choice is needed: exactly
// one option resolved and it requires no profile setup. The caller should
// then persist it as the active role and navigate without prompting.
func AutoSelect(opts []Option) (Option, bool) {
	if len(opts) == 1 && !opts[0].SetupRequired {
		return opts[0], true
	}
	return Option{}, false
}

// Selectable filters out options that still require profile setup.
func Selectable(opts []Option) []Option {
	out := make([]Option, 0, len(opts))
	for _, o := range opts {
		if !o.SetupRequired {
			out = append(out, o)
		}
	}
	return out
}

// Values returns the role tags of the selectable options, in order. Feed
// this to Manager.ValidateActiveRole after each resolution.
func Values(opts []Option) []authkit.Role {
	out := make([]authkit.Role, 0, len(opts))
	for _, o := range opts {
		if !o.SetupRequired {
			out = append(out, o.Role)
		}
	}
	return out
}
