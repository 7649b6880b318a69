package handlers

import (
	"net/http"
	"time"

	"github.com/dom/accounts/internal/api/middleware"
	"github.com/dom/accounts/internal/config"
)

type cookieWriter struct {
	cfg config.CookieConfig
}

func (c cookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.cfg.SameSiteMode(),
	}
}

func (c cookieWriter) setSession(w http.ResponseWriter, access, refresh string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, access, int(accessTTL.Seconds())))
	http.SetCookie(w, c.cookie(middleware.RefreshTokenCookie, refresh, int(refreshTTL.Seconds())))
}

func (c cookieWriter) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, "", -1))
	http.SetCookie(w, c.cookie(middleware.RefreshTokenCookie, "", -1))
}
