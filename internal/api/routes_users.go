package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tippster/internal/handlers"
	"github.com/charlesng35/tippster/internal/middleware"
	"github.com/charlesng35/tippster/internal/models"
)

func registerPasswordRoutes(api, protected *gin.RouterGroup, handler *handlers.PasswordHandler, limit gin.HandlerFunc) {
	users := api.Group("/users")
	{
		users.POST("/forgot-password", limit, handler.Forgot)
		users.POST("/reset-password", limit, handler.Reset)
	}

	protected.POST("/users/change-password", handler.Change)
}

func registerUserRoutes(protected *gin.RouterGroup, handler *handlers.AdminHandler) {
	admin := protected.Group("/admin/users")

	// Moderators may inspect accounts; only administrators change them.
	view := admin.Group("", middleware.RequireRoles(models.RoleModerator, models.RoleAdmin))
	{
		view.GET("", handler.List)
		view.GET("/:id", handler.Get)
		view.GET("/:id/sessions", handler.Sessions)
	}

	manage := admin.Group("", middleware.RequireRoles(models.RoleAdmin))
	{
		manage.POST("/:id/ban", handler.Ban)
		manage.POST("/:id/unban", handler.Unban)
		manage.POST("/:id/verify", handler.Verify)
		manage.PATCH("/:id/role", handler.SetRole)
	}
}
