package mongodb

import (
	"context"
	"fmt"
	"time"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/repositories/interfaces"
	"lifeline/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type conversationRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewConversationRepository(db *mongo.Database, cache CacheService) interfaces.ConversationRepository {
	return &conversationRepository{
		collection: db.Collection("conversations"),
		cache:      cache,
	}
}

// Create inserts a new conversation. The partial unique index on
// {user_id, status: "active"} keeps one active thread per user, so a
// concurrent create surfaces as a conflict.
func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	conversation.ID = primitive.NewObjectID()
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, conversation)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict("active conversation already exists for this user")
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	r.cacheActiveConversation(ctx, conversation)

	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("conversation not found")
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conversation, nil
}

func (r *conversationRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("conversation not found")
	}

	r.invalidateByID(ctx, id)

	return nil
}

func (r *conversationRepository) GetActiveByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Conversation, error) {
	if conversation := r.getActiveConversationFromCache(ctx, userID.Hex()); conversation != nil {
		return conversation, nil
	}

	var conversation models.Conversation
	filter := bson.M{
		"user_id": userID,
		"status":  models.ConversationStatusActive,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&conversation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("no active conversation for this user")
		}
		return nil, fmt.Errorf("failed to get active conversation: %w", err)
	}

	r.cacheActiveConversation(ctx, &conversation)

	return &conversation, nil
}

func (r *conversationRepository) List(ctx context.Context, status models.ConversationStatus, params *utils.PaginationParams) ([]*models.Conversation, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	if params.Search != "" {
		searchFields := []string{"user_name", "admin_name", "last_message"}
		filter = bson.M{
			"$and": []bson.M{
				filter,
				params.GetSearchFilter(searchFields),
			},
		}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	opts := params.GetSortOptions()
	if params.Sort == "created_at" || params.Sort == "" {
		opts.SetSort(bson.D{{Key: "last_message_time", Value: -1}})
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []*models.Conversation
	for cursor.Next(ctx) {
		var conversation models.Conversation
		if err := cursor.Decode(&conversation); err != nil {
			return nil, 0, fmt.Errorf("failed to decode conversation: %w", err)
		}
		conversations = append(conversations, &conversation)
	}

	return conversations, total, nil
}

// Assign sets the handling operator. Re-assignment just overwrites the
// assignee fields; whether that deserves an announcement is decided by
// the caller, keyed on the conversation having been unassigned before.
func (r *conversationRepository) Assign(ctx context.Context, id primitive.ObjectID, adminID primitive.ObjectID, adminName string) error {
	update := bson.M{
		"$set": bson.M{
			"admin_id":   adminID,
			"admin_name": adminName,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to assign conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("conversation not found")
	}

	r.invalidateByID(ctx, id)

	return nil
}

// Archive moves an active conversation to archived.
func (r *conversationRepository) Archive(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	now := time.Now()
	filter := bson.M{
		"_id":    id,
		"status": models.ConversationStatusActive,
	}
	update := bson.M{
		"$set": bson.M{
			"status":      models.ConversationStatusArchived,
			"archived_at": now,
			"updated_at":  now,
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var conversation models.Conversation
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conversation)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			return nil, fmt.Errorf("failed to archive conversation: %w", err)
		}

		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.Conflict(fmt.Sprintf("conversation is already %s", existing.Status))
	}

	r.invalidateActiveConversationCache(ctx, conversation.UserID.Hex())

	return &conversation, nil
}

// RecordMessage updates the conversation preview and bumps the unread
// counter for the side that did NOT send the message.
func (r *conversationRepository) RecordMessage(ctx context.Context, id primitive.ObjectID, preview string, sentAt time.Time, senderRole models.SenderRole) error {
	unreadField := "unread_count_admin"
	if senderRole == models.SenderRoleAdmin {
		unreadField = "unread_count_user"
	}

	update := bson.M{
		"$set": bson.M{
			"last_message":      preview,
			"last_message_time": sentAt,
			"updated_at":        time.Now(),
		},
		"$inc": bson.M{unreadField: 1},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("conversation not found")
	}

	r.invalidateByID(ctx, id)

	return nil
}

// MarkRead zeroes the reader's unread counter. Repeated calls are
// idempotent.
func (r *conversationRepository) MarkRead(ctx context.Context, id primitive.ObjectID, readerRole models.SenderRole) error {
	unreadField := "unread_count_user"
	if readerRole == models.SenderRoleAdmin {
		unreadField = "unread_count_admin"
	}

	update := bson.M{
		"$set": bson.M{
			unreadField:  0,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("conversation not found")
	}

	r.invalidateByID(ctx, id)

	return nil
}

// Cache operations
func (r *conversationRepository) cacheActiveConversation(ctx context.Context, conversation *models.Conversation) {
	if r.cache != nil && conversation.Status == models.ConversationStatusActive {
		cacheKey := fmt.Sprintf("conversation:active:%s", conversation.UserID.Hex())
		r.cache.Set(ctx, cacheKey, conversation, 2*time.Minute)
	}
}

func (r *conversationRepository) getActiveConversationFromCache(ctx context.Context, userID string) *models.Conversation {
	if r.cache == nil {
		return nil
	}

	cacheKey := fmt.Sprintf("conversation:active:%s", userID)
	var conversation models.Conversation
	err := r.cache.Get(ctx, cacheKey, &conversation)
	if err != nil {
		return nil
	}

	return &conversation
}

func (r *conversationRepository) invalidateActiveConversationCache(ctx context.Context, userID string) {
	if r.cache != nil {
		cacheKey := fmt.Sprintf("conversation:active:%s", userID)
		r.cache.Delete(ctx, cacheKey)
	}
}

// invalidateByID drops the active-conversation cache entry after a
// write that only knows the conversation id.
func (r *conversationRepository) invalidateByID(ctx context.Context, id primitive.ObjectID) {
	if r.cache == nil {
		return
	}

	var conversation models.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err != nil {
		return
	}

	r.invalidateActiveConversationCache(ctx, conversation.UserID.Hex())
}
