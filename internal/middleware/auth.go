package middleware

import (
	"context"
	"net/http"

	"github.com/reflekt-app/reflekt/internal/services"
)

type authCtxKey string

const (
	// RespondentCookie and AdminCookie are the protected cookies carrying
	// the bearer tokens. HttpOnly and SameSite=Strict; never readable by
	// client script.
	RespondentCookie = "reflekt_token"
	AdminCookie      = "reflekt_admin_token"
)

// A browser can hold both cookies at once, so each role's claims live
// under their own context key.
func keyFor(role services.Role) authCtxKey { return authCtxKey(role) }

// WithAuth validates the role's cookie (when present) against the token
// service and attaches the claims to the request context. Validation
// failures leave the request anonymous; gating happens in RequireRole.
func WithAuth(tokens *services.TokenService, role services.Role, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
				claims, err := tokens.Validate(c.Value, services.MaxAgeFor(role))
				if err == nil && claims.Role == role {
					ctx := context.WithValue(r.Context(), keyFor(role), claims)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects requests whose context carries no claims for the
// given role.
func RequireRole(role services.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ClaimsFromContext(r.Context(), role); !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the validated claims for a role, if any.
func ClaimsFromContext(ctx context.Context, role services.Role) (*services.TokenClaims, bool) {
	c, ok := ctx.Value(keyFor(role)).(*services.TokenClaims)
	return c, ok
}

// IdentifierFromContext returns the authenticated identifier for a role.
func IdentifierFromContext(ctx context.Context, role services.Role) (string, bool) {
	if c, ok := ClaimsFromContext(ctx, role); ok && c.Identifier != "" {
		return c.Identifier, true
	}
	return "", false
}
