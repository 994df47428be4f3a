package interfaces

import (
	"context"

	"lifeline/internal/models"
	"lifeline/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Active alert lookups
	GetActiveByUsername(ctx context.Context, username string) (*models.Alert, error)
	GetActive(ctx context.Context, params *utils.PaginationParams) ([]*models.Alert, int64, error)

	// History. An empty status matches all alerts.
	GetByUsername(ctx context.Context, username string, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	GetByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.Alert, int64, error)

	// Location tracking
	AppendLocation(ctx context.Context, id primitive.ObjectID, point models.LocationPoint) (*models.Alert, error)

	// Lifecycle transitions, conditional on the alert still being active
	CancelActive(ctx context.Context, username string) (*models.Alert, error)
	Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID) (*models.Alert, error)

	// Location-based queries
	GetNearbyActive(ctx context.Context, lat, lng, radiusKM float64) ([]*models.Alert, error)
}
