package authkit

import "context"

// Backend is the contract with the remote auth service.
// Implementations: restapi/ (HTTP), fake/ (testing).
type Backend interface {
	// Login exchanges credentials (email/password or phone/OTP) for a
	// token pair and the user record.
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)

	// SendOTP requests a one-time code be dispatched to the phone number.
	SendOTP(ctx context.Context, phoneNumber string, purpose OTPPurpose) error

	// Refresh exchanges the refresh token for a new token pair. The given
	// token is invalidated on success (rotate-on-use).
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)

	// Logout retires the refresh token server-side.
	Logout(ctx context.Context, refreshToken string) error

	// Me returns the current user and the role profiles that exist.
	Me(ctx context.Context, accessToken string) (*Account, error)
}

// TokenStore is the durable key-value store a client platform supplies for
// session persistence (file on desktop, Redis behind a hosted portal).
// Implementations: store/ (memory, file, Redis).
type TokenStore interface {
	// Get returns the stored value, or "" with a nil error when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores the value under the key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// MetricsRecorder observes session operations. The metrics package provides
// a Prometheus-backed implementation.
type MetricsRecorder interface {
	RecordLogin(method, result string)
	RecordRefresh(result string)
	RecordLogout()
	RecordOTPSend(purpose, result string)
}
