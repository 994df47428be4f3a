package handlers

import (
	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationHandler struct {
	conversationService services.ConversationService
}

func NewConversationHandler(conversationService services.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
	}
}

// GetOrCreate returns the caller's active conversation, opening one if
// needed.
func (h *ConversationHandler) GetOrCreate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	conversation, err := h.conversationService.GetOrCreate(c.Request.Context(), userID, currentDisplayName(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Conversation retrieved", conversation)
}

// List returns conversations for the operators' inbox.
func (h *ConversationHandler) List(c *gin.Context) {
	status := models.ConversationStatus(c.Query("status"))
	params := utils.GetPaginationParams(c)

	conversations, total, err := h.conversationService.List(c.Request.Context(), status, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Conversations retrieved", conversations, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(conversations),
	})
}

// Assign puts the calling operator in charge of a conversation.
func (h *ConversationHandler) Assign(c *gin.Context) {
	conversationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conversation ID")
		return
	}

	adminID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	conversation, err := h.conversationService.Assign(c.Request.Context(), conversationID, adminID, currentDisplayName(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Conversation assigned", conversation)
}

// Archive closes a conversation.
func (h *ConversationHandler) Archive(c *gin.Context) {
	conversationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conversation ID")
		return
	}

	conversation, err := h.conversationService.Archive(c.Request.Context(), conversationID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Conversation archived", conversation)
}

// SendMessage writes into a conversation as the calling participant.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	conversationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conversation ID")
		return
	}

	var request models.SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	sender := &services.Sender{
		Name: currentDisplayName(c),
		Role: currentRole(c),
	}
	if id, ok := currentUserID(c); ok {
		sender.ID = &id
	}

	if err := h.authorizeParticipant(c, conversationID, sender.Role); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	message, err := h.conversationService.SendMessage(c.Request.Context(), conversationID, sender, &request)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Message sent", message)
}

// GetMessages pages through a conversation's messages.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conversation ID")
		return
	}

	if err := h.authorizeParticipant(c, conversationID, currentRole(c)); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	params := utils.GetPaginationParams(c)
	messages, total, err := h.conversationService.GetMessages(c.Request.Context(), conversationID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Messages retrieved", messages, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(messages),
	})
}

// MarkRead zeroes the caller's unread counter.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid conversation ID")
		return
	}

	role := currentRole(c)
	if err := h.authorizeParticipant(c, conversationID, role); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	if err := h.conversationService.MarkRead(c.Request.Context(), conversationID, role); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Conversation marked read", nil)
}

// authorizeParticipant checks that the caller belongs to the
// conversation: operators always do, users only their own thread.
// Non-participants get the same answer whether the conversation exists
// or not, so ids reveal nothing.
func (h *ConversationHandler) authorizeParticipant(c *gin.Context, conversationID primitive.ObjectID, role models.SenderRole) error {
	if role == models.SenderRoleAdmin {
		return nil
	}

	conversation, err := h.conversationService.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return errNotParticipant
		}
		return err
	}

	userID, ok := currentUserID(c)
	if !ok || conversation.UserID != userID {
		return errNotParticipant
	}

	return nil
}
