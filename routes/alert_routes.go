package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAlertRoutes wires the alert lifecycle endpoints.
func SetupAlertRoutes(r *gin.RouterGroup, alertHandler *handlers.AlertHandler, jwtSecret string) {
	alerts := r.Group("/alerts")
	alerts.Use(middleware.AuthRequired(jwtSecret))
	{
		alerts.POST("", alertHandler.Raise)
		alerts.POST("/cancel", alertHandler.Cancel)
		alerts.GET("/active", alertHandler.GetActive)
		alerts.GET("/history", alertHandler.GetHistory)
	}

	admin := r.Group("/admin/alerts")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired())
	{
		admin.GET("", alertHandler.ListActive)
		admin.GET("/history", alertHandler.ListHistory)
		admin.GET("/nearby", alertHandler.GetNearby)
		admin.GET("/:id", alertHandler.GetByID)
		admin.PUT("/:id/resolve", alertHandler.Resolve)
	}
}
