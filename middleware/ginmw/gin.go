// Package ginmw provides Gin middleware for session-guarded routes.
//
// The middleware turns guard.Evaluate decisions into HTTP responses: 503
// while the session is still loading, 302 for redirects (a login redirect
// carries the originally requested URL in the next parameter), and
// pass-through with the active role injected when the page may render.
package ginmw

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	authkit "github.com/edupoints/authkit-go"
	"github.com/edupoints/authkit-go/guard"
	"github.com/edupoints/authkit-go/metrics"
)

// Context key for the active role set by Guard.
const KeyActiveRole = "authkit_active_role"

// GuardOption configures Guard behavior.
type GuardOption func(*guardConfig)

type guardConfig struct {
	metrics *metrics.Recorder
}

// WithMetrics records guard decisions on the given recorder.
func WithMetrics(r *metrics.Recorder) GuardOption {
	return func(cfg *guardConfig) { cfg.metrics = r }
}

// Guard returns Gin middleware gating a route group to the required role.
func Guard(mgr *authkit.Manager, required authkit.Role, cfg guard.Config, opts ...GuardOption) gin.HandlerFunc {
	gc := &guardConfig{}
	for _, o := range opts {
		o(gc)
	}

	return func(c *gin.Context) {
		d := guard.Evaluate(guard.Snapshot(mgr), required, cfg)
		gc.observe(d)

		switch d.Action {
		case guard.ActionWait:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		case guard.ActionRedirect:
			c.Redirect(http.StatusFound, redirectLocation(d, c.Request))
			c.Abort()
		default:
			c.Set(KeyActiveRole, mgr.ActiveRole())
			c.Next()
		}
	}
}

// ActiveRole returns the active role injected by Guard, or "" when absent.
func ActiveRole(c *gin.Context) authkit.Role {
	v, _ := c.Get(KeyActiveRole)
	r, _ := v.(authkit.Role)
	return r
}

func (gc *guardConfig) observe(d guard.Decision) {
	if gc.metrics == nil {
		return
	}
	gc.metrics.RecordGuardDecision(decisionLabel(d))
}

func decisionLabel(d guard.Decision) string {
	switch {
	case d.Action == guard.ActionWait:
		return "wait"
	case d.Action == guard.ActionAllow:
		return "allow"
	case d.Reason == guard.ReasonAnonymous:
		return "redirect_login"
	case d.Reason == guard.ReasonNoDashboard:
		return "redirect_unauthorized"
	default:
		return "redirect_dashboard"
	}
}

// redirectLocation appends the originally requested URL to login redirects
// so the client can return there after authenticating. Best-effort.
func redirectLocation(d guard.Decision, r *http.Request) string {
	if d.Reason != guard.ReasonAnonymous {
		return d.Location
	}
	u, err := url.Parse(d.Location)
	if err != nil {
		return d.Location
	}
	q := u.Query()
	q.Set("next", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}
