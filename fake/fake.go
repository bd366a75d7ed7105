// Package fake provides an in-memory authkit.Backend for testing.
//
// Use fake.New() in unit tests to drive the session manager, transport,
// and middleware without a server. Refresh tokens rotate on use exactly
// like the real service: spending one invalidates it.
package fake

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	authkit "github.com/edupoints/authkit-go"
)

type account struct {
	password string
	acct     *authkit.Account
}

// Backend implements authkit.Backend with scripted accounts and OTP codes.
type Backend struct {
	mu      sync.Mutex
	byEmail map[string]*account
	byPhone map[string]*account
	otps    map[string]string   // phone → expected code
	refresh map[string]*account // live refresh tokens
	access  map[string]*account // issued access tokens
	seq     int

	refreshDelay time.Duration
	failNetwork  atomic.Bool

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	otpCalls     atomic.Int32
}

var _ authkit.Backend = (*Backend)(nil)

// Option configures the fake backend.
type Option func(*Backend)

// WithAccount registers an account reachable by its user's email (with the
// given password) and phone number.
func WithAccount(password string, acct *authkit.Account) Option {
	return func(b *Backend) {
		a := &account{password: password, acct: acct}
		if acct.User.Email != "" {
			b.byEmail[acct.User.Email] = a
		}
		if acct.User.PhoneNumber != "" {
			b.byPhone[acct.User.PhoneNumber] = a
		}
	}
}

// WithOTPCode scripts the one-time code accepted for a phone number.
func WithOTPCode(phone, code string) Option {
	return func(b *Backend) { b.otps[phone] = code }
}

// WithRefreshDelay makes every refresh exchange take this long. Use to
// test concurrent callers sharing one in-flight refresh.
func WithRefreshDelay(d time.Duration) Option {
	return func(b *Backend) { b.refreshDelay = d }
}

// New creates a fake backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		byEmail: make(map[string]*account),
		byPhone: make(map[string]*account),
		otps:    make(map[string]string),
		refresh: make(map[string]*account),
		access:  make(map[string]*account),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetNetworkFailure makes every call fail with authkit.NetworkError while
// set.
func (b *Backend) SetNetworkFailure(fail bool) { b.failNetwork.Store(fail) }

// RevokeRefreshTokens invalidates all live refresh tokens, simulating
// server-side expiry.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]*account)
}

// LoginCalls returns how many logins were attempted.
func (b *Backend) LoginCalls() int32 { return b.loginCalls.Load() }

// RefreshCalls returns how many refresh exchanges were attempted.
func (b *Backend) RefreshCalls() int32 { return b.refreshCalls.Load() }

// LogoutCalls returns how many remote logouts were received.
func (b *Backend) LogoutCalls() int32 { return b.logoutCalls.Load() }

// --- authkit.Backend ---

func (b *Backend) Login(_ context.Context, creds authkit.Credentials) (*authkit.LoginResult, error) {
	b.loginCalls.Add(1)
	if b.failNetwork.Load() {
		return nil, &authkit.NetworkError{Err: errNetwork}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var a *account
	switch {
	case creds.OTP != "":
		code, ok := b.otps[creds.PhoneNumber]
		if !ok || code != creds.OTP {
			return nil, &authkit.CredentialError{Message: "invalid or expired code"}
		}
		a = b.byPhone[creds.PhoneNumber]
	default:
		a = b.byEmail[creds.Email]
		if a != nil && a.password != creds.Password {
			a = nil
		}
	}
	if a == nil {
		return nil, &authkit.CredentialError{Message: "invalid credentials"}
	}

	return &authkit.LoginResult{Tokens: b.issueLocked(a), User: a.acct.User}, nil
}

func (b *Backend) SendOTP(_ context.Context, phoneNumber string, _ authkit.OTPPurpose) error {
	b.otpCalls.Add(1)
	if b.failNetwork.Load() {
		return &authkit.NetworkError{Err: errNetwork}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byPhone[phoneNumber]; !ok {
		return &authkit.CredentialError{Message: "unknown phone number"}
	}
	return nil
}

func (b *Backend) Refresh(_ context.Context, refreshToken string) (authkit.TokenPair, error) {
	b.refreshCalls.Add(1)
	if b.refreshDelay > 0 {
		time.Sleep(b.refreshDelay)
	}
	if b.failNetwork.Load() {
		return authkit.TokenPair{}, &authkit.NetworkError{Err: errNetwork}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.refresh[refreshToken]
	if !ok {
		return authkit.TokenPair{}, &authkit.CredentialError{Message: "refresh token expired"}
	}
	delete(b.refresh, refreshToken) // rotate on use
	return b.issueLocked(a), nil
}

func (b *Backend) Logout(_ context.Context, refreshToken string) error {
	b.logoutCalls.Add(1)
	if b.failNetwork.Load() {
		return &authkit.NetworkError{Err: errNetwork}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.refresh, refreshToken)
	return nil
}

func (b *Backend) Me(_ context.Context, accessToken string) (*authkit.Account, error) {
	if b.failNetwork.Load() {
		return nil, &authkit.NetworkError{Err: errNetwork}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.access[accessToken]
	if !ok {
		return nil, &authkit.CredentialError{Message: "invalid access token"}
	}
	return a.acct, nil
}

// issueLocked mints a fresh token pair. Caller holds b.mu.
func (b *Backend) issueLocked(a *account) authkit.TokenPair {
	b.seq++
	pair := authkit.TokenPair{
		AccessToken:  "access-" + strconv.Itoa(b.seq),
		RefreshToken: "refresh-" + strconv.Itoa(b.seq),
	}
	b.access[pair.AccessToken] = a
	b.refresh[pair.RefreshToken] = a
	return pair
}

var errNetwork = errors.New("connection refused")
