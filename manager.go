// Package authkit provides a framework-agnostic Go SDK for the EduPoints
// platform's authenticated-session lifecycle.
//
// The Manager owns the access/refresh token pair, the active role, and the
// login/refresh/logout state machine. Storage and transport are injected:
// a TokenStore persists the session across restarts, a Backend talks to the
// remote auth service. Role resolution lives in roles/, route guarding in
// guard/ with framework adapters under middleware/.
//
// Example:
//
//	mgr := authkit.NewManager(
//	    restapi.New("https://api.edupoints.example"),
//	    store.NewFile(tokenPath),
//	    authkit.WithLogger(slog.Default()),
//	)
//	if err := mgr.Load(ctx); err != nil { ... }
//	user, err := mgr.Login(ctx, authkit.Credentials{Email: email, Password: pw})
package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/edupoints/authkit-go/audit"
)

// DefaultRefreshBuffer is how long before expiry an access token is
// refreshed proactively by EnsureToken.
const DefaultRefreshBuffer = 30 * time.Second

// Manager owns the session state machine. One instance exists per running
// client, created at startup and alive for the process lifetime. It is the
// only writer of the token pair and the active role; everything else reads.
type Manager struct {
	backend Backend
	store   TokenStore
	logger  *slog.Logger
	metrics MetricsRecorder
	audit   *audit.Logger

	refreshBuffer time.Duration
	now           func() time.Time

	mu         sync.RWMutex
	tokens     TokenPair
	activeRole Role
	loaded     bool
	refreshing bool
	gen        uint64 // bumped on login/logout; stale refresh results are discarded

	sf singleflight.Group
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a structured logger for session lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets a recorder for session operation metrics.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithAuditLog sets an audit logger that receives session events.
func WithAuditLog(l *audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

// WithRefreshBuffer sets how long before expiry EnsureToken refreshes.
func WithRefreshBuffer(d time.Duration) Option {
	return func(m *Manager) { m.refreshBuffer = d }
}

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. The manager reports StateLoading
// until Load has read the persisted session from the store.
func NewManager(backend Backend, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		backend:       backend,
		store:         store,
		logger:        slog.Default(),
		refreshBuffer: DefaultRefreshBuffer,
		now:           time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State reports the current lifecycle phase, derived from token presence
// plus the in-flight refresh. There is no independently settable flag.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case !m.loaded:
		return StateLoading
	case m.refreshing:
		return StateRefreshing
	case m.tokens.AccessToken != "":
		return StateAuthenticated
	default:
		return StateAnonymous
	}
}

// Tokens returns a copy of the current token pair.
func (m *Manager) Tokens() TokenPair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

// ActiveRole returns the role the session currently operates under, or ""
// when none has been selected.
func (m *Manager) ActiveRole() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeRole
}

// Load reads the persisted token pair and active role from the store and
// resolves the session to Anonymous or Authenticated. Call once at startup.
// A store read failure resolves to Anonymous rather than staying in Loading.
func (m *Manager) Load(ctx context.Context) error {
	access, errA := m.store.Get(ctx, StorageKeyAccessToken)
	refresh, errB := m.store.Get(ctx, StorageKeyRefreshToken)
	role, errC := m.store.Get(ctx, StorageKeyActiveRole)

	m.mu.Lock()
	m.loaded = true
	if err := errors.Join(errA, errB, errC); err != nil {
		m.tokens = TokenPair{}
		m.activeRole = ""
		m.mu.Unlock()
		return fmt.Errorf("authkit: load session: %w", err)
	}
	m.tokens = TokenPair{AccessToken: access, RefreshToken: refresh}
	m.activeRole = Role(role)
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "session loaded", "state", m.State().String(), "active_role", role)
	return nil
}

// Login authenticates with email/password or phone/OTP. On success the new
// token pair is persisted and the session becomes Authenticated. On failure
// any prior session is left untouched.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*User, error) {
	method := "password"
	if creds.OTP != "" {
		method = "otp"
	}

	res, err := m.backend.Login(ctx, creds)
	if err != nil {
		m.record(func(r MetricsRecorder) { r.RecordLogin(method, "failure") })
		m.emit(audit.Event{Action: audit.ActionLogin, Method: method, Result: audit.ResultFailure, Error: err.Error()})
		return nil, err
	}

	m.mu.Lock()
	m.tokens = res.Tokens
	m.activeRole = ""
	m.loaded = true
	m.gen++
	m.mu.Unlock()

	m.persistTokens(ctx, res.Tokens)
	_ = m.store.Remove(ctx, StorageKeyActiveRole)

	m.record(func(r MetricsRecorder) { r.RecordLogin(method, "success") })
	m.emit(audit.Event{Action: audit.ActionLogin, Method: method, Result: audit.ResultSuccess})
	m.logger.InfoContext(ctx, "login succeeded", "method", method, "user_id", res.User.ID)
	return res.User, nil
}

// SendOTP asks the backend to dispatch a one-time code. Resend throttling is
// a UI concern; the manager does not enforce a cooldown.
func (m *Manager) SendOTP(ctx context.Context, phoneNumber string, purpose OTPPurpose) error {
	err := m.backend.SendOTP(ctx, phoneNumber, purpose)
	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
	}
	m.record(func(r MetricsRecorder) { r.RecordOTPSend(string(purpose), result) })
	m.emit(audit.Event{Action: audit.ActionOTPSend, Method: string(purpose), Result: result})
	return err
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share a single in-flight exchange, so the rotate-on-use refresh token is
// only spent once. A credential rejection tears the session down and yields
// ErrSessionExpired; a network failure leaves the session intact.
func (m *Manager) Refresh(ctx context.Context) (TokenPair, error) {
	m.mu.RLock()
	ready := m.loaded && m.tokens.RefreshToken != ""
	m.mu.RUnlock()
	if !ready {
		return TokenPair{}, ErrNoSession
	}

	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return TokenPair{}, err
	}
	return v.(TokenPair), nil
}

func (m *Manager) doRefresh(ctx context.Context) (TokenPair, error) {
	m.mu.Lock()
	refresh := m.tokens.RefreshToken
	gen := m.gen
	if refresh == "" {
		m.mu.Unlock()
		return TokenPair{}, ErrNoSession
	}
	m.refreshing = true
	m.mu.Unlock()

	pair, err := m.backend.Refresh(ctx, refresh)

	m.mu.Lock()
	m.refreshing = false
	if m.gen != gen {
		// A logout or a new login landed while the exchange was in flight;
		// its state wins and this result is discarded.
		m.mu.Unlock()
		return TokenPair{}, ErrSessionExpired
	}
	if err != nil {
		m.mu.Unlock()
		if IsNetwork(err) {
			m.record(func(r MetricsRecorder) { r.RecordRefresh("network_error") })
			return TokenPair{}, err
		}
		m.teardown(ctx)
		m.record(func(r MetricsRecorder) { r.RecordRefresh("expired") })
		m.emit(audit.Event{Action: audit.ActionRefresh, Result: audit.ResultFailure, Error: err.Error()})
		m.logger.InfoContext(ctx, "refresh token rejected, session torn down")
		return TokenPair{}, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	m.tokens = pair
	m.mu.Unlock()

	m.persistTokens(ctx, pair)
	m.record(func(r MetricsRecorder) { r.RecordRefresh("success") })
	m.emit(audit.Event{Action: audit.ActionRefresh, Result: audit.ResultSuccess})
	return pair, nil
}

// Logout clears all local session state unconditionally, then makes a
// best-effort attempt to retire the refresh token remotely. A network
// failure never blocks the local logout.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	refresh := m.tokens.RefreshToken
	m.tokens = TokenPair{}
	m.activeRole = ""
	m.loaded = true
	m.gen++
	m.mu.Unlock()

	m.clearStore(ctx)

	if refresh != "" {
		if err := m.backend.Logout(ctx, refresh); err != nil {
			m.logger.DebugContext(ctx, "remote logout failed", "error", err)
		}
	}

	m.record(func(r MetricsRecorder) { r.RecordLogout() })
	m.emit(audit.Event{Action: audit.ActionLogout, Result: audit.ResultSuccess})
}

// FetchAccount retrieves the current user and existing role profiles. Called
// after login or session restore to drive role resolution; the result is
// never persisted.
func (m *Manager) FetchAccount(ctx context.Context) (*Account, error) {
	token, err := m.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	return m.backend.Me(ctx, token)
}

// EnsureToken returns an access token usable for an authenticated request,
// refreshing first when the current one is within the refresh buffer of
// expiry. Opaque (non-JWT) tokens are returned as-is; their expiry is only
// discovered through a 401 (see Transport).
func (m *Manager) EnsureToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	loaded := m.loaded
	token := m.tokens.AccessToken
	m.mu.RUnlock()

	if !loaded || token == "" {
		return "", ErrNoSession
	}
	if exp, ok := tokenExpiry(token); ok && m.now().Add(m.refreshBuffer).After(exp) {
		pair, err := m.Refresh(ctx)
		if err != nil {
			return "", err
		}
		return pair.AccessToken, nil
	}
	return token, nil
}

// SetActiveRole records the role the session operates under and persists it
// so the UI does not re-prompt across restarts.
func (m *Manager) SetActiveRole(ctx context.Context, role Role) error {
	m.mu.Lock()
	m.activeRole = role
	m.mu.Unlock()

	if err := m.store.Set(ctx, StorageKeyActiveRole, string(role)); err != nil {
		return fmt.Errorf("authkit: persist active role: %w", err)
	}
	m.emit(audit.Event{Action: audit.ActionRoleSelect, Role: string(role), Result: audit.ResultSuccess})
	return nil
}

// ValidateActiveRole clears the active role when it is no longer among the
// resolvable roles for the current user (e.g. a profile was deleted). It
// returns the remaining active role, "" when cleared or never set.
func (m *Manager) ValidateActiveRole(ctx context.Context, valid []Role) Role {
	m.mu.RLock()
	current := m.activeRole
	m.mu.RUnlock()
	if current == "" {
		return ""
	}
	for _, r := range valid {
		if r == current {
			return current
		}
	}

	m.mu.Lock()
	if m.activeRole == current {
		m.activeRole = ""
	}
	m.mu.Unlock()
	if err := m.store.Remove(ctx, StorageKeyActiveRole); err != nil {
		m.logger.WarnContext(ctx, "clear active role failed", "error", err)
	}
	m.logger.InfoContext(ctx, "active role no longer valid, cleared", "role", string(current))
	return ""
}

// --- internal helpers ---

// teardown drops the session from memory and durable storage. Called when
// the refresh token is rejected.
func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	m.tokens = TokenPair{}
	m.activeRole = ""
	m.gen++
	m.mu.Unlock()
	m.clearStore(ctx)
}

func (m *Manager) persistTokens(ctx context.Context, pair TokenPair) {
	if err := m.store.Set(ctx, StorageKeyAccessToken, pair.AccessToken); err != nil {
		m.logger.WarnContext(ctx, "persist access token failed", "error", err)
	}
	if err := m.store.Set(ctx, StorageKeyRefreshToken, pair.RefreshToken); err != nil {
		m.logger.WarnContext(ctx, "persist refresh token failed", "error", err)
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	for _, key := range []string{StorageKeyAccessToken, StorageKeyRefreshToken, StorageKeyActiveRole} {
		if err := m.store.Remove(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "clear session key failed", "key", key, "error", err)
		}
	}
}

func (m *Manager) record(fn func(MetricsRecorder)) {
	if m.metrics != nil {
		fn(m.metrics)
	}
}

func (m *Manager) emit(e audit.Event) {
	if m.audit != nil {
		m.audit.Log(e)
	}
}

// tokenExpiry peeks at a JWT's exp claim without verifying the signature.
// Returns false for opaque tokens.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
