package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// MaxLocationHistory caps the location trail kept on an alert. Older
// entries are dropped, the most recent ones are kept.
const MaxLocationHistory = 50

type Alert struct {
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Username is the stable identity key for owner-side operations.
	// UserID is resolved lazily and may stay nil: an alert is never
	// rejected just because the owner record could not be looked up.
	Username string              `json:"username" bson:"username" validate:"required"`
	UserID   *primitive.ObjectID `json:"user_id" bson:"user_id"`

	Status          AlertStatus     `json:"status" bson:"status" default:"active"`
	Location        GeoPoint        `json:"location" bson:"location" validate:"required"`
	Address         string          `json:"address" bson:"address"`
	LocationHistory []LocationPoint `json:"location_history" bson:"location_history"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at" bson:"resolved_at"`
	CancelledAt *time.Time `json:"cancelled_at" bson:"cancelled_at"`

	ResolvedBy *primitive.ObjectID `json:"resolved_by" bson:"resolved_by"`
}

func (a *Alert) IsTerminal() bool {
	return a.Status == AlertStatusResolved || a.Status == AlertStatusCancelled
}

// AppendLocation records a new trail entry, truncating to the most
// recent MaxLocationHistory entries.
func (a *Alert) AppendLocation(point LocationPoint) {
	a.LocationHistory = append(a.LocationHistory, point)
	if len(a.LocationHistory) > MaxLocationHistory {
		a.LocationHistory = a.LocationHistory[len(a.LocationHistory)-MaxLocationHistory:]
	}
}

// AlertEvent is the minimal projection pushed to websocket rooms.
// Subscribers re-fetch the full alert over HTTP when they need more.
type AlertEvent struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Status    AlertStatus `json:"status"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Address   string      `json:"address"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (a *Alert) Event() *AlertEvent {
	return &AlertEvent{
		ID:        a.ID.Hex(),
		Username:  a.Username,
		Status:    a.Status,
		Latitude:  a.Location.Latitude(),
		Longitude: a.Location.Longitude(),
		Address:   a.Address,
		UpdatedAt: a.UpdatedAt,
	}
}
