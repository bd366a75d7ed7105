package authkit

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when the refresh token itself is rejected.
// The session has been torn down; only a fresh login recovers from this.
var ErrSessionExpired = errors.New("authkit: session expired")

// ErrNoSession is returned when an operation needs an authenticated session
// and there is none (or the store has not been loaded yet).
var ErrNoSession = errors.New("authkit: no active session")

// CredentialError means the server rejected the supplied credentials or OTP.
// Recoverable by user retry. Message carries the server's explanation when
// one was provided.
type CredentialError struct {
	Message string
}

func (e *CredentialError) Error() string {
	if e.Message == "" {
		return "authkit: invalid credentials"
	}
	return "authkit: " + e.Message
}

// NetworkError means no usable response arrived from the server. Recoverable
// by retry and must be presented differently from a credential rejection.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("authkit: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RoleResolutionError means an authenticated user has no usable role/profile
// combination. Fatal for the session until corrected server-side.
type RoleResolutionError struct {
	UserID string
}

func (e *RoleResolutionError) Error() string {
	return "authkit: no valid roles or profiles found"
}

// IsCredential reports whether err is a credential rejection.
func IsCredential(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
