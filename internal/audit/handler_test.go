package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/shared"
)

type stubChecker struct {
	granted map[string]bool
}

func (s *stubChecker) HasPermission(ctx context.Context, actor *accounts.User, key string) bool {
	return s.granted[key]
}

func newAuditRouter(t *testing.T, repo *mockAuditRepo, checker PermissionChecker) http.Handler {
	t.Helper()
	handler := NewHandler(slog.Default(), NewService(repo), checker)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func getAs(t *testing.T, router http.Handler, actor *accounts.User, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if actor != nil {
		req = req.WithContext(accounts.ContextWithActor(req.Context(), actor))
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLatestEndpoint(t *testing.T) {
	repo := newMockAuditRepo()
	seedEntries(t, repo, "3", 3)
	router := newAuditRouter(t, repo, &stubChecker{granted: map[string]bool{shared.PermSeePermissionsLog: true}})
	viewer := &accounts.User{ID: 1, Role: "Manager"}

	res := getAs(t, router, viewer, "/audit/users/3/latest")
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", res.Code, res.Body.String())
	}

	var entry ChangeLog
	if err := json.Unmarshal(res.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if entry.EntityID != "3" {
		t.Fatalf("expected entity id 3, got %q", entry.EntityID)
	}
	if len(entry.Permissions) != 1 || entry.Permissions[0] != "key-2" {
		t.Fatalf("expected the newest snapshot, got %v", entry.Permissions)
	}
}

func TestLatestEndpointWithoutHistory(t *testing.T) {
	router := newAuditRouter(t, newMockAuditRepo(), &stubChecker{granted: map[string]bool{shared.PermSeePermissionsLog: true}})
	viewer := &accounts.User{ID: 1, Role: "Manager"}

	res := getAs(t, router, viewer, "/audit/users/9/latest")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", res.Code)
	}
}

func TestLatestEndpointRequiresLogPermission(t *testing.T) {
	repo := newMockAuditRepo()
	seedEntries(t, repo, "3", 1)
	router := newAuditRouter(t, repo, &stubChecker{})

	res := getAs(t, router, nil, "/audit/users/3/latest")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}

	res = getAs(t, router, &accounts.User{ID: 2, Role: "Employee"}, "/audit/users/3/latest")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", res.Code)
	}
}
