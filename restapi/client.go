// Package restapi implements authkit.Backend against the platform's REST
// auth service.
//
// Transport failures surface as authkit.NetworkError, 4xx rejections as
// authkit.CredentialError carrying the server's message. The refresh
// endpoint is always called directly with a plain HTTP client, never
// through a refreshing transport, so it cannot recurse.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	authkit "github.com/edupoints/authkit-go"
)

// Client talks to the remote auth service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	deviceID   string
}

var _ authkit.Backend = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for auth requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithDeviceID pins the device identifier sent with every request. By
// default a random one is generated per client instance.
func WithDeviceID(id string) Option {
	return func(cl *Client) { cl.deviceID = id }
}

// New creates a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		deviceID:   uuid.NewString(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DeviceID returns the identifier sent as X-Device-ID.
func (c *Client) DeviceID() string { return c.deviceID }

// --- wire types ---

type userDTO struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phoneNumber"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Avatar      string   `json:"avatar"`
	Roles       []string `json:"roles"`
}

func (d userDTO) toUser() *authkit.User {
	roles := make([]authkit.Role, len(d.Roles))
	for i, r := range d.Roles {
		roles[i] = authkit.Role(r)
	}
	return &authkit.User{
		ID:          d.ID,
		Email:       d.Email,
		PhoneNumber: d.PhoneNumber,
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		AvatarURL:   d.Avatar,
		Roles:       roles,
	}
}

type loginRequest struct {
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	OTP         string `json:"otp,omitempty"`
}

type loginResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	User         userDTO `json:"user"`
}

type otpRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Purpose     string `json:"purpose"`
}

type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type profileDTO struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

type meResponse struct {
	User     userDTO      `json:"user"`
	Profiles []profileDTO `json:"profiles"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// --- authkit.Backend ---

func (c *Client) Login(ctx context.Context, creds authkit.Credentials) (*authkit.LoginResult, error) {
	body := loginRequest{
		Email:       creds.Email,
		Password:    creds.Password,
		PhoneNumber: creds.PhoneNumber,
		OTP:         creds.OTP,
	}
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out, ""); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, fmt.Errorf("restapi: login response missing tokens")
	}
	return &authkit.LoginResult{
		Tokens: authkit.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken},
		User:   out.User.toUser(),
	}, nil
}

func (c *Client) SendOTP(ctx context.Context, phoneNumber string, purpose authkit.OTPPurpose) error {
	return c.do(ctx, http.MethodPost, "/auth/send-otp", otpRequest{PhoneNumber: phoneNumber, Purpose: string(purpose)}, nil, "")
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (authkit.TokenPair, error) {
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", tokenRequest{RefreshToken: refreshToken}, &out, ""); err != nil {
		return authkit.TokenPair{}, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return authkit.TokenPair{}, fmt.Errorf("restapi: refresh response missing tokens")
	}
	return authkit.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", tokenRequest{RefreshToken: refreshToken}, nil, "")
}

func (c *Client) Me(ctx context.Context, accessToken string) (*authkit.Account, error) {
	var out meResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out, accessToken); err != nil {
		return nil, err
	}
	profiles := make([]authkit.Profile, len(out.Profiles))
	for i, p := range out.Profiles {
		profiles[i] = authkit.Profile{Role: authkit.Role(p.Role), ID: p.ID}
	}
	return &authkit.Account{User: out.User.toUser(), Profiles: profiles}, nil
}

// do issues one request and classifies the outcome. 5xx is treated as a
// retryable network-level failure, not a credential rejection, so a flaky
// upstream never tears a session down.
func (c *Client) do(ctx context.Context, method, path string, body, out any, accessToken string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restapi: encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("restapi: create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Device-ID", c.deviceID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &authkit.NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &authkit.NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &authkit.NetworkError{Err: fmt.Errorf("%s returned %d", path, resp.StatusCode)}
	case resp.StatusCode >= 400:
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		return &authkit.CredentialError{Message: er.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("restapi: decode %s response: %w", path, err)
		}
	}
	return nil
}
