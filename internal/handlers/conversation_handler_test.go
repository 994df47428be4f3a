package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// stubConversationService serves a single conversation by id.
type stubConversationService struct {
	conversation *models.Conversation
}

func (s *stubConversationService) GetOrCreate(ctx context.Context, userID primitive.ObjectID, userName string) (*models.Conversation, error) {
	return s.conversation, nil
}

func (s *stubConversationService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	if s.conversation != nil && s.conversation.ID == id {
		return s.conversation, nil
	}
	return nil, apperrors.NotFound("conversation not found")
}

func (s *stubConversationService) Assign(ctx context.Context, id, adminID primitive.ObjectID, adminName string) (*models.Conversation, error) {
	return s.conversation, nil
}

func (s *stubConversationService) Archive(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	return s.conversation, nil
}

func (s *stubConversationService) List(ctx context.Context, status models.ConversationStatus, params *utils.PaginationParams) ([]*models.Conversation, int64, error) {
	return nil, 0, nil
}

func (s *stubConversationService) SendMessage(ctx context.Context, conversationID primitive.ObjectID, sender *services.Sender, request *models.SendMessageRequest) (*models.Message, error) {
	return &models.Message{ID: primitive.NewObjectID()}, nil
}

func (s *stubConversationService) GetMessages(ctx context.Context, conversationID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	return nil, 0, nil
}

func (s *stubConversationService) MarkRead(ctx context.Context, conversationID primitive.ObjectID, readerRole models.SenderRole) error {
	return nil
}

func TestGetMessagesHidesWhetherConversationExists(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ownerID := primitive.NewObjectID()
	conversation := &models.Conversation{ID: primitive.NewObjectID(), UserID: ownerID}
	handler := NewConversationHandler(&stubConversationService{conversation: conversation})

	outsiderID := primitive.NewObjectID()
	router := gin.New()
	router.GET("/conversations/:id/messages", authAs(outsiderID, "mallory", "user"), handler.GetMessages)

	// Someone else's conversation and a nonexistent one must look the
	// same to a non-participant.
	existing := httptest.NewRecorder()
	router.ServeHTTP(existing, httptest.NewRequest("GET", "/conversations/"+conversation.ID.Hex()+"/messages", nil))
	assert.Equal(t, http.StatusForbidden, existing.Code)

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest("GET", "/conversations/"+primitive.NewObjectID().Hex()+"/messages", nil))
	assert.Equal(t, http.StatusForbidden, missing.Code)

	assert.Equal(t, decodeResponse(t, existing).Error.Message, decodeResponse(t, missing).Error.Message)
}

func TestGetMessagesAllowsParticipant(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ownerID := primitive.NewObjectID()
	conversation := &models.Conversation{ID: primitive.NewObjectID(), UserID: ownerID}
	handler := NewConversationHandler(&stubConversationService{conversation: conversation})

	router := gin.New()
	router.GET("/conversations/:id/messages", authAs(ownerID, "alice", "user"), handler.GetMessages)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", "/conversations/"+conversation.ID.Hex()+"/messages", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}
