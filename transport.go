package authkit

import (
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that authenticates outgoing requests
// with the manager's access token. A 401 response triggers exactly one
// token refresh (shared with all concurrent callers via the manager) and
// one retry of the original request; a second 401 is returned to the
// caller untouched. Requests marked with WithoutRefresh skip the refresh
// path entirely.
type Transport struct {
	// Manager supplies and refreshes the access token. Required.
	Manager *Manager

	// Base is the underlying round tripper. http.DefaultTransport when nil.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Manager.EnsureToken(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, token)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusUnauthorized || refreshDisabled(req.Context()) {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// The body cannot be replayed; the caller sees the 401.
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	pair, err := t.Manager.Refresh(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err = t.send(req, pair.AccessToken)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	return resp, nil
}

// send issues a clone of req with the bearer token set, leaving the
// original request untouched so it stays replayable.
func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(clone)
}
