package services

import (
	"context"
	"fmt"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/repositories/interfaces"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"
	"lifeline/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationService interface {
	// Conversation lifecycle
	GetOrCreate(ctx context.Context, userID primitive.ObjectID, userName string) (*models.Conversation, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	Assign(ctx context.Context, id primitive.ObjectID, adminID primitive.ObjectID, adminName string) (*models.Conversation, error)
	Archive(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	List(ctx context.Context, status models.ConversationStatus, params *utils.PaginationParams) ([]*models.Conversation, int64, error)

	// Messaging
	SendMessage(ctx context.Context, conversationID primitive.ObjectID, sender *Sender, request *models.SendMessageRequest) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error)
	MarkRead(ctx context.Context, conversationID primitive.ObjectID, readerRole models.SenderRole) error
}

// Sender identifies who is writing into a conversation.
type Sender struct {
	ID   *primitive.ObjectID
	Name string
	Role models.SenderRole
}

type conversationService struct {
	conversationRepo interfaces.ConversationRepository
	messageRepo      interfaces.MessageRepository
	dispatcher       Dispatcher
	log              *logger.Logger
}

func NewConversationService(
	conversationRepo interfaces.ConversationRepository,
	messageRepo interfaces.MessageRepository,
	dispatcher Dispatcher,
	log *logger.Logger,
) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		dispatcher:       dispatcher,
		log:              log,
	}
}

// GetOrCreate returns the user's active conversation, opening one if
// none exists. Concurrent callers converge on a single record, the
// unique index turns the losing insert into a refetch.
func (s *conversationService) GetOrCreate(ctx context.Context, userID primitive.ObjectID, userName string) (*models.Conversation, error) {
	existing, err := s.conversationRepo.GetActiveByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, err
	}

	conversation := &models.Conversation{
		UserID:   userID,
		UserName: userName,
		Status:   models.ConversationStatusActive,
	}

	err = s.conversationRepo.Create(ctx, conversation)
	if apperrors.IsCode(err, apperrors.CodeConflict) {
		return s.conversationRepo.GetActiveByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	s.log.WithUserID(userID).Info("conversation opened")

	s.sendSystemMessage(ctx, conversation, nil, "Support",
		"You are connected to the support line. A responder will join shortly.")

	return conversation, nil
}

func (s *conversationService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	return s.conversationRepo.GetByID(ctx, id)
}

// Assign puts an operator in charge of the conversation. Re-assignment
// only updates the assignee fields; the claim announcement goes out
// once, when the conversation was previously unassigned.
func (s *conversationService) Assign(ctx context.Context, id primitive.ObjectID, adminID primitive.ObjectID, adminName string) (*models.Conversation, error) {
	before, err := s.conversationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.conversationRepo.Assign(ctx, id, adminID, adminName); err != nil {
		return nil, err
	}

	s.log.WithField("conversation_id", id.Hex()).WithUserID(adminID).Info("conversation assigned")

	conversation, err := s.conversationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Announce only the first claim, later re-assignments are silent.
	if before.AdminID == nil {
		s.sendSystemMessage(ctx, conversation, &adminID, adminName,
			fmt.Sprintf("%s has joined the conversation.", adminName))
	}

	return conversation, nil
}

func (s *conversationService) Archive(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	conversation, err := s.conversationRepo.Archive(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.WithField("conversation_id", id.Hex()).Info("conversation archived")

	return conversation, nil
}

func (s *conversationService) List(ctx context.Context, status models.ConversationStatus, params *utils.PaginationParams) ([]*models.Conversation, int64, error) {
	return s.conversationRepo.List(ctx, status, params)
}

// SendMessage persists the message, updates the conversation preview
// and the receiver's unread counter, then fans the event out.
func (s *conversationService) SendMessage(ctx context.Context, conversationID primitive.ObjectID, sender *Sender, request *models.SendMessageRequest) (*models.Message, error) {
	if !sender.Role.Valid() {
		return nil, apperrors.InvalidInput("invalid sender role", nil)
	}

	messageType := request.Type
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !messageType.Valid() {
		return nil, apperrors.InvalidInput("invalid message type", map[string]string{"type": string(request.Type)})
	}
	if messageType == models.MessageTypeText && request.Content == "" {
		return nil, apperrors.InvalidInput("text messages need content", nil)
	}
	if messageType != models.MessageTypeText && request.MediaURL == "" {
		return nil, apperrors.InvalidInput("media messages need a media_url", nil)
	}

	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.Status != models.ConversationStatusActive {
		return nil, apperrors.Conflict("conversation is archived")
	}

	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		SenderName:     sender.Name,
		Type:           messageType,
		Content:        request.Content,
		MediaURL:       request.MediaURL,
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	preview := messageType.Preview(request.Content)
	if err := s.conversationRepo.RecordMessage(ctx, conversationID, preview, message.CreatedAt, sender.Role); err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID.Hex()).Error("failed to update conversation preview")
	}

	s.publishMessage(conversation, message)

	return message, nil
}

func (s *conversationService) GetMessages(ctx context.Context, conversationID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, 0, err
	}
	return s.messageRepo.GetByConversation(ctx, conversationID, params)
}

// MarkRead zeroes the reader's unread counter and flags the other
// side's messages as read. Safe to repeat.
func (s *conversationService) MarkRead(ctx context.Context, conversationID primitive.ObjectID, readerRole models.SenderRole) error {
	if !readerRole.Valid() {
		return apperrors.InvalidInput("invalid reader role", nil)
	}

	if err := s.conversationRepo.MarkRead(ctx, conversationID, readerRole); err != nil {
		return err
	}

	return s.messageRepo.MarkReadByConversation(ctx, conversationID, readerRole)
}

// sendSystemMessage writes an operator-side notice into the conversation.
// Failures are logged and swallowed, a missing welcome never fails the call.
func (s *conversationService) sendSystemMessage(ctx context.Context, conversation *models.Conversation, senderID *primitive.ObjectID, senderName, content string) {
	message := &models.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		SenderRole:     models.SenderRoleAdmin,
		SenderName:     senderName,
		Type:           models.MessageTypeText,
		Content:        content,
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		s.log.WithError(err).WithField("conversation_id", conversation.ID.Hex()).Error("failed to seed system message")
		return
	}

	if err := s.conversationRepo.RecordMessage(ctx, conversation.ID, content, message.CreatedAt, models.SenderRoleAdmin); err != nil {
		s.log.WithError(err).WithField("conversation_id", conversation.ID.Hex()).Error("failed to update conversation preview")
	}

	s.publishMessage(conversation, message)
}

// publishMessage pushes the event to the user's rooms and to whoever
// handles the operator side.
func (s *conversationService) publishMessage(conversation *models.Conversation, message *models.Message) {
	if s.dispatcher == nil {
		return
	}

	data := message.Event()
	s.dispatcher.Publish(websocket.UserIDRoom(conversation.UserID.Hex()), EventMessageSent, data)
	if conversation.UserName != "" {
		s.dispatcher.Publish(websocket.UserRoom(conversation.UserName), EventMessageSent, data)
	}
	if conversation.AdminID != nil {
		s.dispatcher.Publish(websocket.AdminRoom(conversation.AdminID.Hex()), EventMessageSent, data)
	} else {
		s.dispatcher.Publish(websocket.AdminsRoom, EventMessageSent, data)
	}
}
