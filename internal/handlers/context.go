package handlers

import (
	"lifeline/internal/apperrors"
	"lifeline/internal/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errNotParticipant = apperrors.Unauthorized("not a participant of this conversation")

// currentUserID pulls the authenticated caller's id out of the request
// context. The auth middleware stores it as a primitive.ObjectID.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return primitive.NilObjectID, false
	}

	id, ok := value.(primitive.ObjectID)
	if !ok || id.IsZero() {
		return primitive.NilObjectID, false
	}

	return id, true
}

func currentUsername(c *gin.Context) (string, bool) {
	username := c.GetString("username")
	return username, username != ""
}

func currentRole(c *gin.Context) models.SenderRole {
	if c.GetString("user_type") == "admin" {
		return models.SenderRoleAdmin
	}
	return models.SenderRoleUser
}

func currentDisplayName(c *gin.Context) string {
	if name := c.GetString("full_name"); name != "" {
		return name
	}
	return c.GetString("username")
}
