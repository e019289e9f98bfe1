package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okProbe() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	h := &Handler{}
	probe, called := okProbe()
	guarded := h.RequireRoles("ADMIN", "TEACHER")(probe)

	user := &User{ID: 1, Role: "TEACHER"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !*called {
		t.Fatal("expected handler to run")
	}
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	h := &Handler{}
	probe, called := okProbe()
	guarded := h.RequireRoles("ADMIN")(probe)

	user := &User{ID: 1, Role: "STUDENT"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if *called {
		t.Fatal("handler must not run for forbidden role")
	}
}

func TestRequireRolesRejectsAnonymous(t *testing.T) {
	h := &Handler{}
	probe, called := okProbe()
	guarded := h.RequireRoles("ADMIN")(probe)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("handler must not run without a session")
	}
}

func TestMeReadsSessionUser(t *testing.T) {
	h := &Handler{}

	user := &User{ID: 9, Name: "N", Username: "n", Role: "STUDENT"}
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCurrentUserMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := CurrentUser(req.Context()); ok {
		t.Fatal("expected no user on a bare context")
	}
}
