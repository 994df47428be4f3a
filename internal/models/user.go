package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User is the thin directory record the lifecycles read. Registration,
// password handling and profile CRUD live outside this service.
type User struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username          string             `json:"username" bson:"username" validate:"required"`
	FullName          string             `json:"full_name" bson:"full_name"`
	Email             string             `json:"email" bson:"email"`
	Phone             string             `json:"phone" bson:"phone"`
	Role              UserRole           `json:"role" bson:"role" default:"user"`
	AvatarURL         string             `json:"avatar_url" bson:"avatar_url"`
	DeviceTokens      []DeviceToken      `json:"device_tokens" bson:"device_tokens"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts" bson:"emergency_contacts"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}

type DeviceToken struct {
	Token    string `json:"token" bson:"token"`
	Platform string `json:"platform" bson:"platform"` // ios, android
}

type EmergencyContact struct {
	Name  string `json:"name" bson:"name"`
	Phone string `json:"phone" bson:"phone" validate:"required"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
