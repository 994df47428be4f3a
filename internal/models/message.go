package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

// SenderRole discriminates the two participant kinds of a conversation.
type SenderRole string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"

	SenderRoleUser  SenderRole = "user"
	SenderRoleAdmin SenderRole = "admin"
)

func (r SenderRole) Valid() bool {
	return r == SenderRoleUser || r == SenderRoleAdmin
}

// Opposite returns the other side of the conversation.
func (r SenderRole) Opposite() SenderRole {
	if r == SenderRoleUser {
		return SenderRoleAdmin
	}
	return SenderRoleUser
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio:
		return true
	}
	return false
}

// Preview is the conversation list placeholder for a message of this type.
func (t MessageType) Preview(content string) string {
	switch t {
	case MessageTypeImage:
		return "[Image]"
	case MessageTypeVideo:
		return "[Video]"
	case MessageTypeAudio:
		return "[Audio]"
	default:
		return content
	}
}

// Message is immutable once created except for the IsRead flag.
type Message struct {
	ID             primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID  `json:"conversation_id" bson:"conversation_id" validate:"required"`
	SenderID       *primitive.ObjectID `json:"sender_id" bson:"sender_id"`
	SenderRole     SenderRole          `json:"sender_role" bson:"sender_role" validate:"required"`
	SenderName     string              `json:"sender_name" bson:"sender_name"`
	Type           MessageType         `json:"type" bson:"type" default:"text"`
	Content        string              `json:"content" bson:"content"`
	MediaURL       string              `json:"media_url" bson:"media_url"`
	IsRead         bool                `json:"is_read" bson:"is_read"`
	CreatedAt      time.Time           `json:"created_at" bson:"created_at"`
}

// MessageEvent is the minimal projection pushed to websocket rooms.
type MessageEvent struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderRole     SenderRole  `json:"sender_role"`
	Type           MessageType `json:"type"`
	Preview        string      `json:"preview"`
	CreatedAt      time.Time   `json:"created_at"`
}

func (m *Message) Event() *MessageEvent {
	return &MessageEvent{
		ID:             m.ID.Hex(),
		ConversationID: m.ConversationID.Hex(),
		SenderRole:     m.SenderRole,
		Type:           m.Type,
		Preview:        m.Type.Preview(m.Content),
		CreatedAt:      m.CreatedAt,
	}
}
