package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tippster/internal/handlers"
)

func registerSessionRoutes(protected *gin.RouterGroup, handler *handlers.SessionHandler) {
	sessions := protected.Group("/sessions")
	{
		sessions.GET("", handler.List)
		sessions.POST("/revoke-others", handler.RevokeOthers)
		sessions.DELETE("/:id", handler.Revoke)
	}
}
