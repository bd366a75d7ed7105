// Package chimw provides net/http middleware for chi routers.
//
// Same semantics as ginmw: 503 while the session loads, 302 redirects per
// the guard decision, and the active role placed on the request context
// (authkit.ActiveRoleFromContext) when the page may render.
package chimw

import (
	"encoding/json"
	"net/http"
	"net/url"

	authkit "github.com/edupoints/authkit-go"
	"github.com/edupoints/authkit-go/guard"
	"github.com/edupoints/authkit-go/metrics"
)

// GuardOption configures Guard behavior.
type GuardOption func(*guardConfig)

type guardConfig struct {
	metrics *metrics.Recorder
}

// WithMetrics records guard decisions on the given recorder.
func WithMetrics(r *metrics.Recorder) GuardOption {
	return func(cfg *guardConfig) { cfg.metrics = r }
}

// Guard returns middleware gating a route group to the required role.
// Compose with chi's Router.With or Router.Use.
func Guard(mgr *authkit.Manager, required authkit.Role, cfg guard.Config, opts ...GuardOption) func(http.Handler) http.Handler {
	gc := &guardConfig{}
	for _, o := range opts {
		o(gc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := guard.Evaluate(guard.Snapshot(mgr), required, cfg)
			gc.observe(d)

			switch d.Action {
			case guard.ActionWait:
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "loading"})
			case guard.ActionRedirect:
				http.Redirect(w, r, redirectLocation(d, r), http.StatusFound)
			default:
				ctx := authkit.WithActiveRole(r.Context(), mgr.ActiveRole())
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func (gc *guardConfig) observe(d guard.Decision) {
	if gc.metrics == nil {
		return
	}

	var label string
	switch {
	case d.Action == guard.ActionWait:
		label = "wait"
	case d.Action == guard.ActionAllow:
		label = "allow"
	case d.Reason == guard.ReasonAnonymous:
		label = "redirect_login"
	case d.Reason == guard.ReasonNoDashboard:
		label = "redirect_unauthorized"
	default:
		label = "redirect_dashboard"
	}
	gc.metrics.RecordGuardDecision(label)
}

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
