package interfaces

import (
	"context"

	"lifeline/internal/models"
	"lifeline/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.User, int64, error)

	// Push targets
	AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error
	RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error

	// Responder directory
	GetAdmins(ctx context.Context) ([]*models.User, error)
}
