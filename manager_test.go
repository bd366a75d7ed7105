package authkit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authkit "github.com/edupoints/authkit-go"
	"github.com/edupoints/authkit-go/fake"
	"github.com/edupoints/authkit-go/store"
)

func studentAccount() *authkit.Account {
	return &authkit.Account{
		User: &authkit.User{
			ID:          "u1",
			Email:       "amal@example.com",
			PhoneNumber: "+15550001111",
			FirstName:   "Amal",
			Roles:       []authkit.Role{authkit.RoleStudent},
		},
		Profiles: []authkit.Profile{{Role: authkit.RoleStudent, ID: "sp1"}},
	}
}

func newManager(t *testing.T, opts ...fake.Option) (*authkit.Manager, *fake.Backend, *store.Memory) {
	t.Helper()
	backend := fake.New(opts...)
	st := store.NewMemory()
	mgr := authkit.NewManager(backend, st)
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return mgr, backend, st
}

func TestState_LoadingUntilLoad(t *testing.T) {
	mgr := authkit.NewManager(fake.New(), store.NewMemory())
	if got := mgr.State(); got != authkit.StateLoading {
		t.Errorf("State() = %v, want loading", got)
	}

	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := mgr.State(); got != authkit.StateAnonymous {
		t.Errorf("State() = %v, want anonymous", got)
	}
}

func TestLoad_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_ = st.Set(ctx, authkit.StorageKeyAccessToken, "stored-access")
	_ = st.Set(ctx, authkit.StorageKeyRefreshToken, "stored-refresh")
	_ = st.Set(ctx, authkit.StorageKeyActiveRole, "teacher")

	mgr := authkit.NewManager(fake.New(), st)
	if err := mgr.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := mgr.State(); got != authkit.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", got)
	}
	if got := mgr.ActiveRole(); got != authkit.RoleTeacher {
		t.Errorf("ActiveRole() = %q, want teacher", got)
	}
	if got := mgr.Tokens().RefreshToken; got != "stored-refresh" {
		t.Errorf("RefreshToken = %q, want stored-refresh", got)
	}
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	mgr, _, st := newManager(t, fake.WithAccount("hunter2", studentAccount()))

	user, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", user.ID)
	}
	if got := mgr.State(); got != authkit.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", got)
	}

	// Tokens must land in durable storage
	access, _ := st.Get(ctx, authkit.StorageKeyAccessToken)
	refresh, _ := st.Get(ctx, authkit.StorageKeyRefreshToken)
	if access == "" || refresh == "" {
		t.Error("tokens should be persisted on login")
	}
}

func TestLogin_OTP(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t,
		fake.WithAccount("hunter2", studentAccount()),
		fake.WithOTPCode("+15550001111", "123456"),
	)

	if err := mgr.SendOTP(ctx, "+15550001111", authkit.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP() error: %v", err)
	}

	_, err := mgr.Login(ctx, authkit.Credentials{PhoneNumber: "+15550001111", OTP: "123456"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if got := mgr.State(); got != authkit.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", got)
	}
}

func TestLogin_FailureLeavesPriorSessionUntouched(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t, fake.WithAccount("hunter2", studentAccount()))

	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	before := mgr.Tokens()

	_, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "wrong"})
	if !authkit.IsCredential(err) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if mgr.Tokens() != before {
		t.Error("failed login must not touch the existing session")
	}
	if got := mgr.State(); got != authkit.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", got)
	}
}

func TestLogin_NetworkErrorDistinguished(t *testing.T) {
	ctx := context.Background()
	mgr, backend, _ := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	backend.SetNetworkFailure(true)

	_, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"})
	if !authkit.IsNetwork(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if authkit.IsCredential(err) {
		t.Error("network failure must not read as a credential failure")
	}
}

func TestRefresh_RotatesTokens(t *testing.T) {
	ctx := context.Background()
	mgr, _, st := newManager(t, fake.WithAccount("hunter2", studentAccount()))

	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	before := mgr.Tokens()

	pair, err := mgr.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if pair == before {
		t.Error("refresh should yield a new token pair")
	}
	if mgr.Tokens() != pair {
		t.Error("manager should hold the new pair")
	}

	access, _ := st.Get(ctx, authkit.StorageKeyAccessToken)
	if access != pair.AccessToken {
		t.Errorf("persisted access token = %q, want %q", access, pair.AccessToken)
	}
}

func TestRefresh_ConcurrentCallersShareOneFlight(t *testing.T) {
	ctx := context.Background()
	mgr, backend, _ := newManager(t,
		fake.WithAccount("hunter2", studentAccount()),
		fake.WithRefreshDelay(50*time.Millisecond),
	)
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	var wg sync.WaitGroup
	pairs := make([]authkit.TokenPair, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := mgr.Refresh(ctx)
			if err != nil {
				t.Errorf("Refresh() error: %v", err)
				return
			}
			pairs[i] = pair
		}(i)
	}
	wg.Wait()

	if got := backend.RefreshCalls(); got != 1 {
		t.Errorf("backend saw %d refresh calls, want 1", got)
	}
	for i := 1; i < len(pairs); i++ {
		if pairs[i] != pairs[0] {
			t.Fatal("all concurrent callers should receive the same token pair")
		}
	}
}

func TestRefresh_ExpiredTokenTearsSessionDown(t *testing.T) {
	ctx := context.Background()
	mgr, backend, st := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	backend.RevokeRefreshTokens()

	_, err := mgr.Refresh(ctx)
	if !errors.Is(err, authkit.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := mgr.State(); got != authkit.StateAnonymous {
		t.Errorf("State() = %v, want anonymous", got)
	}

	for _, key := range []string{authkit.StorageKeyAccessToken, authkit.StorageKeyRefreshToken, authkit.StorageKeyActiveRole} {
		if v, _ := st.Get(ctx, key); v != "" {
			t.Errorf("store key %s should be cleared, got %q", key, v)
		}
	}
}

func TestRefresh_NetworkFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	mgr, backend, _ := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	before := mgr.Tokens()
	backend.SetNetworkFailure(true)

	_, err := mgr.Refresh(ctx)
	if !authkit.IsNetwork(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if got := mgr.State(); got != authkit.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated (session kept)", got)
	}
	if mgr.Tokens() != before {
		t.Error("tokens should be unchanged after a network failure")
	}
}

func TestRefresh_WithoutSession(t *testing.T) {
	mgr, _, _ := newManager(t)
	_, err := mgr.Refresh(context.Background())
	if !errors.Is(err, authkit.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestLogout_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	mgr, backend, st := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := mgr.SetActiveRole(ctx, authkit.RoleStudent); err != nil {
		t.Fatalf("SetActiveRole() error: %v", err)
	}

	mgr.Logout(ctx)

	if got := mgr.State(); got != authkit.StateAnonymous {
		t.Errorf("State() = %v, want anonymous", got)
	}
	if got := mgr.ActiveRole(); got != "" {
		t.Errorf("ActiveRole() = %q, want empty", got)
	}
	for _, key := range []string{authkit.StorageKeyAccessToken, authkit.StorageKeyRefreshToken, authkit.StorageKeyActiveRole} {
		if v, _ := st.Get(ctx, key); v != "" {
			t.Errorf("store key %s should be cleared, got %q", key, v)
		}
	}
	if got := backend.LogoutCalls(); got != 1 {
		t.Errorf("backend saw %d logout calls, want 1", got)
	}
}

func TestLogout_NetworkFailureStillClearsLocally(t *testing.T) {
	ctx := context.Background()
	mgr, backend, st := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	backend.SetNetworkFailure(true)

	mgr.Logout(ctx)

	if got := mgr.State(); got != authkit.StateAnonymous {
		t.Errorf("State() = %v, want anonymous", got)
	}
	if v, _ := st.Get(ctx, authkit.StorageKeyRefreshToken); v != "" {
		t.Error("refresh token should be cleared despite remote failure")
	}
}

func TestLogout_DuringRefreshWins(t *testing.T) {
	ctx := context.Background()
	mgr, _, st := newManager(t,
		fake.WithAccount("hunter2", studentAccount()),
		fake.WithRefreshDelay(100*time.Millisecond),
	)
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Refresh(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond) // refresh is in flight
	mgr.Logout(ctx)

	if err := <-done; err == nil {
		t.Error("refresh overtaken by logout should not succeed")
	}
	if got := mgr.State(); got != authkit.StateAnonymous {
		t.Errorf("State() = %v, want anonymous", got)
	}
	for _, key := range []string{authkit.StorageKeyAccessToken, authkit.StorageKeyRefreshToken} {
		if v, _ := st.Get(ctx, key); v != "" {
			t.Errorf("store key %s should stay cleared after logout, got %q", key, v)
		}
	}
}

func TestFetchAccount(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	acct, err := mgr.FetchAccount(ctx)
	if err != nil {
		t.Fatalf("FetchAccount() error: %v", err)
	}
	if acct.User.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", acct.User.ID)
	}
	if len(acct.Profiles) != 1 || acct.Profiles[0].Role != authkit.RoleStudent {
		t.Errorf("Profiles = %v, want one student profile", acct.Profiles)
	}
}

func TestEnsureToken_ProactiveRefreshNearExpiry(t *testing.T) {
	ctx := context.Background()
	backend := fake.New(fake.WithAccount("hunter2", studentAccount()))
	st := store.NewMemory()

	// Seed the store with a JWT expiring in 10s and a live refresh token
	// obtained from a real login against the fake.
	seed := authkit.NewManager(backend, store.NewMemory())
	_ = seed.Load(ctx)
	if _, err := seed.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	expiring := makeJWT(t, time.Now().Add(10*time.Second))
	_ = st.Set(ctx, authkit.StorageKeyAccessToken, expiring)
	_ = st.Set(ctx, authkit.StorageKeyRefreshToken, seed.Tokens().RefreshToken)

	mgr := authkit.NewManager(backend, st, authkit.WithRefreshBuffer(30*time.Second))
	if err := mgr.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	calls := backend.RefreshCalls()

	token, err := mgr.EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if token == expiring {
		t.Error("expiring token should have been replaced")
	}
	if got := backend.RefreshCalls(); got != calls+1 {
		t.Errorf("backend saw %d refresh calls, want %d", got, calls+1)
	}
}

func TestEnsureToken_OpaqueTokenReturnedAsIs(t *testing.T) {
	ctx := context.Background()
	mgr, backend, _ := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	calls := backend.RefreshCalls()

	token, err := mgr.EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if token != mgr.Tokens().AccessToken {
		t.Errorf("token = %q, want the held access token", token)
	}
	if got := backend.RefreshCalls(); got != calls {
		t.Errorf("opaque token should not trigger a refresh, saw %d extra calls", got-calls)
	}
}

func TestSetActiveRole_PersistsAndValidates(t *testing.T) {
	ctx := context.Background()
	mgr, _, st := newManager(t, fake.WithAccount("hunter2", studentAccount()))
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "amal@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if err := mgr.SetActiveRole(ctx, authkit.RoleParent); err != nil {
		t.Fatalf("SetActiveRole() error: %v", err)
	}
	if v, _ := st.Get(ctx, authkit.StorageKeyActiveRole); v != "parent" {
		t.Errorf("persisted active role = %q, want parent", v)
	}

	// Still valid: kept
	if got := mgr.ValidateActiveRole(ctx, []authkit.Role{authkit.RoleParent, authkit.RoleTeacher}); got != authkit.RoleParent {
		t.Errorf("ValidateActiveRole() = %q, want parent", got)
	}

	// No longer in the resolvable set: cleared
	if got := mgr.ValidateActiveRole(ctx, []authkit.Role{authkit.RoleTeacher}); got != "" {
		t.Errorf("ValidateActiveRole() = %q, want empty", got)
	}
	if got := mgr.ActiveRole(); got != "" {
		t.Errorf("ActiveRole() = %q, want empty after invalidation", got)
	}
	if v, _ := st.Get(ctx, authkit.StorageKeyActiveRole); v != "" {
		t.Errorf("persisted active role should be removed, got %q", v)
	}
}

func makeJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
