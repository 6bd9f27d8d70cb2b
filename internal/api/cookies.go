package api

import (
	"net/http"
	"time"
)

func (rt *Router) setAuthCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   rt.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (rt *Router) clearAuthCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   rt.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
