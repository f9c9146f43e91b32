package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tippster/internal/handlers"
	"github.com/charlesng35/tippster/internal/middleware"
)

type authRouteDeps struct {
	Auth     *handlers.AuthHandler
	Verifier middleware.AccessVerifier
	Limit    gin.HandlerFunc
}

func registerAuthRoutes(api, protected *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.Limit, deps.Auth.Login)
		auth.POST("/register", deps.Limit, deps.Auth.Register)
		auth.POST("/refresh", deps.Limit, deps.Auth.Refresh)

		optional := middleware.OptionalAuth(deps.Verifier)
		auth.POST("/logout", optional, deps.Auth.Logout)
		auth.GET("/status", optional, deps.Auth.Status)
	}

	protected.GET("/auth/me", deps.Auth.Me)
}
