package api

import (
	"net/http"

	"github.com/reflekt-app/reflekt/internal/middleware"
	"github.com/reflekt-app/reflekt/internal/services"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := rt.credentials.Authenticate(req.Identifier, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := rt.tokens.Issue(account.Identifier, services.RoleRespondent)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.setAuthCookie(w, middleware.RespondentCookie, token, services.RespondentTokenMaxAge)

	session, err := rt.sessions.Begin(account.Identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"account": map[string]any{
			"identifier":   account.Identifier,
			"display_name": account.DisplayName,
			"department":   account.Department,
		},
		"session": session,
	})
}

func (rt *Router) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := rt.admins.Authenticate(req.Username, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := rt.tokens.Issue(account.Identifier, services.RoleAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.setAuthCookie(w, middleware.AdminCookie, token, services.AdminTokenMaxAge)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLogout clears both cookies unconditionally. There is no
// server-side revocation; a captured token stays valid until it ages
// out.
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	rt.clearAuthCookie(w, middleware.RespondentCookie)
	rt.clearAuthCookie(w, middleware.AdminCookie)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// requireAdminAccount re-checks the admin identity against the
// credential store on every administrative request instead of trusting
// the token alone.
func (rt *Router) requireAdminAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier, ok := middleware.IdentifierFromContext(r.Context(), services.RoleAdmin)
		if !ok {
			writeError(w, services.NewUnauthorizedError("unauthorized"))
			return
		}
		account, err := rt.admins.Resolve(identifier)
		if err != nil {
			writeError(w, err)
			return
		}
		if account == nil {
			writeError(w, services.NewUnauthorizedError("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
