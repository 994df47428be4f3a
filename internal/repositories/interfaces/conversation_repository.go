package interfaces

import (
	"context"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Active conversation lookups
	GetActiveByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Conversation, error)
	List(ctx context.Context, status models.ConversationStatus, params *utils.PaginationParams) ([]*models.Conversation, int64, error)

	// Assignment and lifecycle
	Assign(ctx context.Context, id primitive.ObjectID, adminID primitive.ObjectID, adminName string) error
	Archive(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)

	// Unread bookkeeping
	RecordMessage(ctx context.Context, id primitive.ObjectID, preview string, sentAt time.Time, senderRole models.SenderRole) error
	MarkRead(ctx context.Context, id primitive.ObjectID, readerRole models.SenderRole) error
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByConversation(ctx context.Context, conversationID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error)
	MarkReadByConversation(ctx context.Context, conversationID primitive.ObjectID, readerRole models.SenderRole) error
}
