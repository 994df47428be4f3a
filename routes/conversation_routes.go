package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupConversationRoutes wires the support conversation endpoints.
func SetupConversationRoutes(r *gin.RouterGroup, conversationHandler *handlers.ConversationHandler, jwtSecret string) {
	conversations := r.Group("/conversations")
	conversations.Use(middleware.AuthRequired(jwtSecret))
	{
		conversations.POST("", conversationHandler.GetOrCreate)
		conversations.GET("/:id/messages", conversationHandler.GetMessages)
		conversations.POST("/:id/messages", conversationHandler.SendMessage)
		conversations.PUT("/:id/read", conversationHandler.MarkRead)
	}

	admin := r.Group("/admin/conversations")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired())
	{
		admin.GET("", conversationHandler.List)
		admin.PUT("/:id/assign", conversationHandler.Assign)
		admin.PUT("/:id/archive", conversationHandler.Archive)
	}
}
