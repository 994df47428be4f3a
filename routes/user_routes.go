package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupUserRoutes wires account and device endpoints.
func SetupUserRoutes(r *gin.RouterGroup, userHandler *handlers.UserHandler, jwtSecret string) {
	r.POST("/users/register", userHandler.Register)

	users := r.Group("/users")
	users.Use(middleware.AuthRequired(jwtSecret))
	{
		users.GET("/me", userHandler.GetProfile)
		users.PUT("/me", userHandler.UpdateProfile)
		users.POST("/me/devices", userHandler.RegisterDevice)
		users.DELETE("/me/devices", userHandler.UnregisterDevice)
	}

	admin := r.Group("/admin/users")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired())
	{
		admin.GET("", userHandler.List)
	}
}
