// Package metrics provides Prometheus metrics for session operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	authkit "github.com/edupoints/authkit-go"
)

// Recorder holds all Prometheus metrics for session operations.
type Recorder struct {
	enabled bool

	loginsTotal    *prometheus.CounterVec
	refreshesTotal *prometheus.CounterVec
	logoutsTotal   prometheus.Counter
	otpSendsTotal  *prometheus.CounterVec
	guardTotal     *prometheus.CounterVec
}

var _ authkit.MetricsRecorder = (*Recorder)(nil)

// Option configures the Recorder.
type Option func(*config)

type config struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers metrics with a custom registerer instead of the
// default registry. Use in tests to avoid duplicate registration.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *config) { c.registerer = r }
}

// New creates and registers session metrics.
// If enabled is false, returns a no-op Recorder.
func New(enabled bool, opts ...Option) *Recorder {
	r := &Recorder{enabled: enabled}
	if !enabled {
		return r
	}

	cfg := &config{registerer: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o(cfg)
	}
	factory := promauto.With(cfg.registerer)

	r.loginsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_logins_total",
		Help: "Login attempts by method and result",
	}, []string{"method", "result"})

	r.refreshesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_refreshes_total",
		Help: "Token refresh attempts by result",
	}, []string{"result"})

	r.logoutsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "authkit_logouts_total",
		Help: "Total logouts",
	})

	r.otpSendsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_otp_sends_total",
		Help: "OTP dispatch requests by purpose and result",
	}, []string{"purpose", "result"})

	r.guardTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_guard_decisions_total",
		Help: "Route guard decisions by outcome",
	}, []string{"decision"})

	return r
}

// RecordLogin records a login attempt.
func (r *Recorder) RecordLogin(method, result string) {
	if !r.enabled {
		return
	}
	r.loginsTotal.WithLabelValues(method, result).Inc()
}

// RecordRefresh records a token refresh attempt.
func (r *Recorder) RecordRefresh(result string) {
	if !r.enabled {
		return
	}
	r.refreshesTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a logout.
func (r *Recorder) RecordLogout() {
	if !r.enabled {
		return
	}
	r.logoutsTotal.Inc()
}

// RecordOTPSend records an OTP dispatch request.
func (r *Recorder) RecordOTPSend(purpose, result string) {
	if !r.enabled {
		return
	}
	r.otpSendsTotal.WithLabelValues(purpose, result).Inc()
}

// RecordGuardDecision records a route guard outcome
// (allow, wait, redirect_login, redirect_unauthorized, redirect_dashboard).
func (r *Recorder) RecordGuardDecision(decision string) {
	if !r.enabled {
		return
	}
	r.guardTotal.WithLabelValues(decision).Inc()
}
