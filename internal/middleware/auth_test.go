package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reflekt-app/reflekt/internal/services"
)

func protectedEcho(t *testing.T, tokens *services.TokenService, role services.Role, cookieName string) http.Handler {
	t.Helper()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentifierFromContext(r.Context(), role)
		_, _ = w.Write([]byte(id))
	})
	return WithAuth(tokens, role, cookieName)(RequireRole(role)(inner))
}

func TestCookieAuthRoundTrip(t *testing.T) {
	tokens := services.NewTokenService("test-secret")
	handler := protectedEcho(t, tokens, services.RoleRespondent, RespondentCookie)

	token, err := tokens.Issue("emp_1", services.RoleRespondent)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: RespondentCookie, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("valid cookie must pass, got %d", rec.Code)
	}
	if rec.Body.String() != "emp_1" {
		t.Fatalf("identifier not propagated, got %q", rec.Body.String())
	}
}

func TestMissingOrBadCookieRejected(t *testing.T) {
	tokens := services.NewTokenService("test-secret")
	handler := protectedEcho(t, tokens, services.RoleRespondent, RespondentCookie)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie must be rejected, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: RespondentCookie, Value: "garbage"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token must be rejected, got %d", rec.Code)
	}

	// A token minted by another secret never validates.
	other := services.NewTokenService("other-secret")
	token, err := other.Issue("emp_1", services.RoleRespondent)
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: RespondentCookie, Value: token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token must be rejected, got %d", rec.Code)
	}
}

func TestRoleIsolation(t *testing.T) {
	tokens := services.NewTokenService("test-secret")

	// A respondent token inside the admin cookie carries the wrong role.
	respondentToken, err := tokens.Issue("emp_1", services.RoleRespondent)
	if err != nil {
		t.Fatal(err)
	}
	adminHandler := protectedEcho(t, tokens, services.RoleAdmin, AdminCookie)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil)
	req.AddCookie(&http.Cookie{Name: AdminCookie, Value: respondentToken})
	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("respondent token must not open admin routes, got %d", rec.Code)
	}
}

func TestBothCookiesCoexist(t *testing.T) {
	tokens := services.NewTokenService("test-secret")

	respondentToken, _ := tokens.Issue("emp_1", services.RoleRespondent)
	adminToken, _ := tokens.Issue("admin", services.RoleAdmin)

	var sawRespondent, sawAdmin string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRespondent, _ = IdentifierFromContext(r.Context(), services.RoleRespondent)
		sawAdmin, _ = IdentifierFromContext(r.Context(), services.RoleAdmin)
	})
	handler := WithAuth(tokens, services.RoleRespondent, RespondentCookie)(
		WithAuth(tokens, services.RoleAdmin, AdminCookie)(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: RespondentCookie, Value: respondentToken})
	req.AddCookie(&http.Cookie{Name: AdminCookie, Value: adminToken})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if sawRespondent != "emp_1" || sawAdmin != "admin" {
		t.Fatalf("both identities must survive side by side, got %q / %q", sawRespondent, sawAdmin)
	}
}
