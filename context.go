package authkit

import "context"

type ctxKey string

const (
	ctxKeyUser        ctxKey = "authkit_user"
	ctxKeyActiveRole  ctxKey = "authkit_active_role"
	ctxKeySkipRefresh ctxKey = "authkit_skip_refresh"
)

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// UserFromContext extracts the authenticated user from the context.
func UserFromContext(ctx context.Context) *User {
	v, _ := ctx.Value(ctxKeyUser).(*User)
	return v
}

// WithActiveRole stores the active role in the context.
func WithActiveRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, ctxKeyActiveRole, role)
}

// ActiveRoleFromContext extracts the active role from the context.
func ActiveRoleFromContext(ctx context.Context) Role {
	v, _ := ctx.Value(ctxKeyActiveRole).(Role)
	return v
}

// WithoutRefresh marks a request so that a 401 response does not trigger a
// token refresh. Use for calls that must never enter the refresh path.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeySkipRefresh, true)
}

func refreshDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeySkipRefresh).(bool)
	return v
}
