package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[primitive.ObjectID]*models.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[primitive.ObjectID]*models.Conversation)}
}

func (f *fakeConversationRepo) Create(ctx context.Context, conversation *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.conversations {
		if existing.UserID == conversation.UserID && existing.Status == models.ConversationStatusActive {
			return apperrors.Conflict("active conversation already exists for this user")
		}
	}

	conversation.ID = primitive.NewObjectID()
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = time.Now()
	clone := *conversation
	f.conversations[conversation.ID] = &clone
	return nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[id]
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	clone := *conversation
	return &clone, nil
}

func (f *fakeConversationRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeConversationRepo) GetActiveByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, conversation := range f.conversations {
		if conversation.UserID == userID && conversation.Status == models.ConversationStatusActive {
			clone := *conversation
			return &clone, nil
		}
	}
	return nil, apperrors.NotFound("no active conversation for this user")
}

func (f *fakeConversationRepo) List(ctx context.Context, status models.ConversationStatus, params *utils.PaginationParams) ([]*models.Conversation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Conversation
	for _, conversation := range f.conversations {
		if status == "" || conversation.Status == status {
			clone := *conversation
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeConversationRepo) Assign(ctx context.Context, id primitive.ObjectID, adminID primitive.ObjectID, adminName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[id]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	conversation.AdminID = &adminID
	conversation.AdminName = adminName
	return nil
}

func (f *fakeConversationRepo) Archive(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[id]
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	if conversation.Status != models.ConversationStatusActive {
		return nil, apperrors.Conflict(fmt.Sprintf("conversation is already %s", conversation.Status))
	}

	now := time.Now()
	conversation.Status = models.ConversationStatusArchived
	conversation.ArchivedAt = &now
	clone := *conversation
	return &clone, nil
}

func (f *fakeConversationRepo) RecordMessage(ctx context.Context, id primitive.ObjectID, preview string, sentAt time.Time, senderRole models.SenderRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[id]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}

	conversation.LastMessage = preview
	conversation.LastMessageTime = sentAt
	if senderRole == models.SenderRoleAdmin {
		conversation.UnreadCountUser++
	} else {
		conversation.UnreadCountAdmin++
	}
	return nil
}

func (f *fakeConversationRepo) MarkRead(ctx context.Context, id primitive.ObjectID, readerRole models.SenderRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation, ok := f.conversations[id]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}

	if readerRole == models.SenderRoleAdmin {
		conversation.UnreadCountAdmin = 0
	} else {
		conversation.UnreadCountUser = 0
	}
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()
	clone := *message
	f.messages = append(f.messages, &clone)
	return nil
}

func (f *fakeMessageRepo) GetByConversation(ctx context.Context, conversationID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Message
	for _, message := range f.messages {
		if message.ConversationID == conversationID {
			clone := *message
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeMessageRepo) MarkReadByConversation(ctx context.Context, conversationID primitive.ObjectID, readerRole models.SenderRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, message := range f.messages {
		if message.ConversationID == conversationID && message.SenderRole == readerRole.Opposite() {
			message.IsRead = true
		}
	}
	return nil
}

func newTestConversationService(t *testing.T) (ConversationService, *fakeConversationRepo, *fakeMessageRepo, *fakeDispatcher) {
	t.Helper()
	conversationRepo := newFakeConversationRepo()
	messageRepo := &fakeMessageRepo{}
	dispatcher := &fakeDispatcher{}

	svc := NewConversationService(conversationRepo, messageRepo, dispatcher, testLogger(t))
	return svc, conversationRepo, messageRepo, dispatcher
}

func TestGetOrCreateReusesActiveConversation(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	first, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	second, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateConvergesUnderConcurrency(t *testing.T) {
	svc, repo, _, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]primitive.ObjectID, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = conversation.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	active, _, err := repo.List(ctx, models.ConversationStatusActive, nil)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestGetOrCreateSeedsWelcomeMessage(t *testing.T) {
	svc, repo, messageRepo, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	messages, _, err := messageRepo.GetByConversation(ctx, conversation.ID, nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.SenderRoleAdmin, messages[0].SenderRole)
	assert.Nil(t, messages[0].SenderID)
	assert.NotEmpty(t, messages[0].Content)

	stored, err := repo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadCountUser)

	// Reopening does not seed a second welcome.
	_, err = svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)
	messages, _, err = messageRepo.GetByConversation(ctx, conversation.ID, nil)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestSendMessageBumpsReceiverUnread(t *testing.T) {
	svc, repo, _, dispatcher := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	before, err := repo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversation.ID, &Sender{ID: &userID, Name: "Alice", Role: models.SenderRoleUser}, &models.SendMessageRequest{
		Type:    models.MessageTypeText,
		Content: "help please",
	})
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UnreadCountAdmin+1, updated.UnreadCountAdmin)
	assert.Equal(t, before.UnreadCountUser, updated.UnreadCountUser)
	assert.Equal(t, "help please", updated.LastMessage)
	assert.NotEmpty(t, dispatcher.byEvent(EventMessageSent))
}

func TestSendMediaMessageUsesPreviewPlaceholder(t *testing.T) {
	svc, repo, _, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	before, err := repo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversation.ID, &Sender{Name: "Op", Role: models.SenderRoleAdmin}, &models.SendMessageRequest{
		Type:     models.MessageTypeImage,
		MediaURL: "https://cdn.example.com/x.jpg",
	})
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "[Image]", updated.LastMessage)
	assert.Equal(t, before.UnreadCountUser+1, updated.UnreadCountUser)
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversation.ID, &Sender{Role: models.SenderRoleUser}, &models.SendMessageRequest{
		Type: models.MessageTypeText,
	})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	_, err = svc.SendMessage(ctx, conversation.ID, &Sender{Role: models.SenderRoleUser}, &models.SendMessageRequest{
		Type: models.MessageTypeImage,
	})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	_, err = svc.SendMessage(ctx, conversation.ID, &Sender{Role: "ghost"}, &models.SendMessageRequest{
		Type:    models.MessageTypeText,
		Content: "hi",
	})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
}

func TestSendMessageToArchivedConversation(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	_, err = svc.Archive(ctx, conversation.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversation.ID, &Sender{Role: models.SenderRoleUser}, &models.SendMessageRequest{
		Type:    models.MessageTypeText,
		Content: "hello?",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, repo, messageRepo, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.SendMessage(ctx, conversation.ID, &Sender{Role: models.SenderRoleUser, Name: "Alice"}, &models.SendMessageRequest{
			Type:    models.MessageTypeText,
			Content: "ping",
		})
		require.NoError(t, err)
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.MarkRead(ctx, conversation.ID, models.SenderRoleAdmin))
	}

	updated, err := repo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.UnreadCountAdmin)

	messages, _, err := messageRepo.GetByConversation(ctx, conversation.ID, nil)
	require.NoError(t, err)
	for _, message := range messages {
		if message.SenderRole == models.SenderRoleUser {
			assert.True(t, message.IsRead)
		}
	}
}

func TestAssignAnnouncesOnlyFirstClaim(t *testing.T) {
	svc, _, messageRepo, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	adminID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	_, err = svc.Assign(ctx, conversation.ID, adminID, "Op One")
	require.NoError(t, err)

	// Welcome plus the claim announcement.
	messages, _, err := messageRepo.GetByConversation(ctx, conversation.ID, nil)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assigned, err := svc.Assign(ctx, conversation.ID, adminID, "Op One")
	require.NoError(t, err)
	require.NotNil(t, assigned.AdminID)
	assert.Equal(t, adminID, *assigned.AdminID)

	// Re-claiming stays silent.
	messages, _, err = messageRepo.GetByConversation(ctx, conversation.ID, nil)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// A different operator takes over without ceremony: the assignee
	// fields change, nothing new is announced.
	otherID := primitive.NewObjectID()
	assigned, err = svc.Assign(ctx, conversation.ID, otherID, "Op Two")
	require.NoError(t, err)
	require.NotNil(t, assigned.AdminID)
	assert.Equal(t, otherID, *assigned.AdminID)
	assert.Equal(t, "Op Two", assigned.AdminName)

	messages, _, err = messageRepo.GetByConversation(ctx, conversation.ID, nil)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestArchiveTwiceConflicts(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	conversation, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)

	_, err = svc.Archive(ctx, conversation.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	// The user can open a fresh conversation afterwards.
	fresh, err := svc.GetOrCreate(ctx, userID, "Alice")
	require.NoError(t, err)
	assert.NotEqual(t, conversation.ID, fresh.ID)
}
