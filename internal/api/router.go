package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/reflekt-app/reflekt/internal/middleware"
	"github.com/reflekt-app/reflekt/internal/services"
)

// Router wires the HTTP surface to the services.
type Router struct {
	tokens      *services.TokenService
	credentials *services.CredentialService
	admins      *services.CredentialService
	sessions    *services.SessionService
	admin       *services.AdminService
	summaries   services.SummaryStore
	gen         services.Generator
	limiter     *middleware.RateLimiter

	secureCookies bool
}

type RouterDeps struct {
	Tokens      *services.TokenService
	Credentials *services.CredentialService
	Admins      *services.CredentialService
	Sessions    *services.SessionService
	Admin       *services.AdminService
	Summaries   services.SummaryStore
	Generator   services.Generator
	Limiter     *middleware.RateLimiter

	SecureCookies bool
}

func NewRouter(deps RouterDeps) *Router {
	return &Router{
		tokens:        deps.Tokens,
		credentials:   deps.Credentials,
		admins:        deps.Admins,
		sessions:      deps.Sessions,
		admin:         deps.Admin,
		summaries:     deps.Summaries,
		gen:           deps.Generator,
		limiter:       deps.Limiter,
		secureCookies: deps.SecureCookies,
	}
}

// Register mounts all API routes.
func (rt *Router) Register(r chi.Router) {
	r.Use(middleware.WithAuth(rt.tokens, services.RoleRespondent, middleware.RespondentCookie))
	r.Use(middleware.WithAuth(rt.tokens, services.RoleAdmin, middleware.AdminCookie))

	r.Post("/api/login", rt.handleLogin)
	r.Post("/api/admin/login", rt.handleAdminLogin)
	r.Post("/api/logout", rt.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(services.RoleRespondent))
		r.Get("/api/session", rt.handleSessionView)
		r.Post("/api/session/start", rt.handleSessionStart)
		r.Post("/api/session/profile", rt.handleSessionProfile)
		r.Post("/api/session/answer", rt.handleSessionAnswer)
		r.Post("/api/session/followups", rt.handleSessionFollowUps)
		r.Post("/api/session/goto", rt.handleSessionGoto)
		r.Post("/api/session/summary", rt.handleSessionSummary)
		r.Post("/api/summaries", rt.handleSaveSummary)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(services.RoleRespondent))
		if rt.limiter != nil {
			r.Use(rt.limiter.Middleware)
		}
		r.Post("/api/generate/questions", rt.handleGenerateQuestions)
		r.Post("/api/generate/followups", rt.handleGenerateFollowUps)
		r.Post("/api/generate/summary", rt.handleGenerateSummary)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(services.RoleAdmin))
		r.Use(rt.requireAdminAccount)
		r.Get("/api/admin/accounts", rt.handleListAccounts)
		r.Post("/api/admin/accounts", rt.handleUpsertAccount)
		r.Delete("/api/admin/accounts", rt.handleRemoveAccount)
		r.Post("/api/admin/accounts/bulk", rt.handleBulkAccounts)
		r.Get("/api/admin/admins", rt.handleListAdmins)
		r.Post("/api/admin/admins", rt.handleUpsertAdmin)
		r.Delete("/api/admin/admins", rt.handleRemoveAdmin)
		r.Post("/api/admin/status", rt.handleUpdateStatus)
		r.Get("/api/admin/export", rt.handleExportSummaries)
		r.Get("/api/summaries", rt.handleGetSummaries)
	})
}
