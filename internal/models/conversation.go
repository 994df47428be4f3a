package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusArchived ConversationStatus = "archived"
)

type Conversation struct {
	ID      primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID  primitive.ObjectID  `json:"user_id" bson:"user_id" validate:"required"`
	AdminID *primitive.ObjectID `json:"admin_id" bson:"admin_id"`

	// Display names are denormalized so list views do not join users.
	UserName  string `json:"user_name" bson:"user_name"`
	AdminName string `json:"admin_name" bson:"admin_name"`

	Status          ConversationStatus `json:"status" bson:"status" default:"active"`
	LastMessage     string             `json:"last_message" bson:"last_message"`
	LastMessageTime time.Time          `json:"last_message_time" bson:"last_message_time"`

	UnreadCountUser  int `json:"unread_count_user" bson:"unread_count_user"`
	UnreadCountAdmin int `json:"unread_count_admin" bson:"unread_count_admin"`

	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at" bson:"archived_at"`
}

func (c *Conversation) IsAssigned() bool {
	return c.AdminID != nil && !c.AdminID.IsZero()
}
