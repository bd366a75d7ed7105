package chimw_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	authkit "github.com/edupoints/authkit-go"
	"github.com/edupoints/authkit-go/fake"
	"github.com/edupoints/authkit-go/guard"
	"github.com/edupoints/authkit-go/middleware/chimw"
	"github.com/edupoints/authkit-go/store"
)

func newRouter(mgr *authkit.Manager) http.Handler {
	r := chi.NewRouter()
	r.With(chimw.Guard(mgr, authkit.RoleTeacher, guard.Config{})).
		Get("/teacher/dashboard", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Role", string(authkit.ActiveRoleFromContext(r.Context())))
			w.WriteHeader(http.StatusOK)
		})
	return r
}

func teacherManager(t *testing.T) *authkit.Manager {
	t.Helper()
	backend := fake.New(fake.WithAccount("hunter2", &authkit.Account{
		User:     &authkit.User{ID: "u1", Email: "lee@example.com", Roles: []authkit.Role{authkit.RoleTeacher}},
		Profiles: []authkit.Profile{{Role: authkit.RoleTeacher, ID: "tp1"}},
	}))
	mgr := authkit.NewManager(backend, store.NewMemory())
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return mgr
}

func TestGuard_Loading(t *testing.T) {
	mgr := authkit.NewManager(fake.New(), store.NewMemory())

	w := httptest.NewRecorder()
	newRouter(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teacher/dashboard", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while loading", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestGuard_AnonymousRedirect(t *testing.T) {
	mgr := teacherManager(t)

	w := httptest.NewRecorder()
	newRouter(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teacher/dashboard", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/login?next=%2Fteacher%2Fdashboard" {
		t.Errorf("Location = %q, want login redirect with next", got)
	}
}

func TestGuard_AllowInjectsRole(t *testing.T) {
	ctx := context.Background()
	mgr := teacherManager(t)
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "lee@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := mgr.SetActiveRole(ctx, authkit.RoleTeacher); err != nil {
		t.Fatalf("SetActiveRole() error: %v", err)
	}

	w := httptest.NewRecorder()
	newRouter(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teacher/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Role"); got != "teacher" {
		t.Errorf("injected role = %q, want teacher", got)
	}
}

func TestGuard_MismatchRedirect(t *testing.T) {
	ctx := context.Background()
	mgr := teacherManager(t)
	if _, err := mgr.Login(ctx, authkit.Credentials{Email: "lee@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := mgr.SetActiveRole(ctx, authkit.RoleStudent); err != nil {
		t.Fatalf("SetActiveRole() error: %v", err)
	}

	w := httptest.NewRecorder()
	newRouter(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teacher/dashboard", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/student/dashboard" {
		t.Errorf("Location = %q, want /student/dashboard", got)
	}
}
