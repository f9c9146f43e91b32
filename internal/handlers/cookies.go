package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// RefreshCookieName carries the opaque refresh token. It is the only channel for it.
	RefreshCookieName = "tippster_refresh"
	// RefreshCookiePath scopes the cookie to the auth endpoints that consume it.
	RefreshCookiePath = "/api/auth"
)

// CookieSettings controls attributes of the refresh token cookie.
type CookieSettings struct {
	Domain string
	Secure bool
}

func (s CookieSettings) setRefresh(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, token, maxAge, RefreshCookiePath, s.Domain, s.Secure, true)
}

func (s CookieSettings) clearRefresh(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, RefreshCookiePath, s.Domain, s.Secure, true)
}

func refreshFromCookie(c *gin.Context) string {
	value, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
