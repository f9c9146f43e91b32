package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/middleware"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
	"github.com/charlesng35/tippster/pkg/response"
)

// requestContext returns the request context, or Background for handlers driven without a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// requirePrincipal returns the authenticated caller or writes UNAUTHORIZED.
func requirePrincipal(c *gin.Context) (middleware.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
	}
	return principal, ok
}

// requestDevice describes the client from its User-Agent, resolved IP and edge geo headers.
func requestDevice(c *gin.Context) iauth.DeviceInfo {
	return iauth.ParseDevice(c.Request.UserAgent(), c.ClientIP(), c.Request.Header)
}
