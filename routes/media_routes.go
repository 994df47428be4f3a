package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupMediaRoutes wires attachment upload endpoints.
func SetupMediaRoutes(r *gin.RouterGroup, mediaHandler *handlers.MediaHandler, jwtSecret string) {
	media := r.Group("/media")
	media.Use(middleware.AuthRequired(jwtSecret))
	{
		media.POST("", mediaHandler.Upload)
		media.DELETE("", mediaHandler.Delete)
	}
}
