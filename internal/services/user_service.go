package services

import (
	"context"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/repositories/interfaces"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserService interface {
	Register(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.User, int64, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.User, error)

	RegisterDevice(ctx context.Context, id primitive.ObjectID, request *models.RegisterDeviceRequest) error
	UnregisterDevice(ctx context.Context, id primitive.ObjectID, token string) error
}

type userService struct {
	userRepo interfaces.UserRepository
	log      *logger.Logger
}

func NewUserService(userRepo interfaces.UserRepository, log *logger.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		log:      log,
	}
}

func (s *userService) Register(ctx context.Context, user *models.User) (*models.User, error) {
	if err := utils.ValidateStruct(user); err != nil {
		return nil, apperrors.InvalidInput("invalid user", utils.ValidationDetails(err))
	}
	if user.Role == "" {
		user.Role = models.UserRoleUser
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithUsername(user.Username).Info("user registered")

	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userRepo.GetByUsername(ctx, username)
}

func (s *userService) List(ctx context.Context, params *utils.PaginationParams) ([]*models.User, int64, error) {
	return s.userRepo.List(ctx, params)
}

// UpdateProfile applies a whitelisted set of profile fields.
func (s *userService) UpdateProfile(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.User, error) {
	allowed := map[string]bool{
		"full_name":          true,
		"email":              true,
		"phone":              true,
		"avatar_url":         true,
		"emergency_contacts": true,
	}

	filtered := make(map[string]interface{})
	for field, value := range updates {
		if allowed[field] {
			filtered[field] = value
		}
	}
	if len(filtered) == 0 {
		return nil, apperrors.InvalidInput("no updatable fields provided", nil)
	}

	if err := s.userRepo.Update(ctx, id, filtered); err != nil {
		return nil, err
	}

	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) RegisterDevice(ctx context.Context, id primitive.ObjectID, request *models.RegisterDeviceRequest) error {
	if err := utils.ValidateStruct(request); err != nil {
		return apperrors.InvalidInput("invalid device registration", utils.ValidationDetails(err))
	}

	return s.userRepo.AddDeviceToken(ctx, id, models.DeviceToken{
		Token:    request.Token,
		Platform: request.Platform,
	})
}

func (s *userService) UnregisterDevice(ctx context.Context, id primitive.ObjectID, token string) error {
	if token == "" {
		return apperrors.InvalidInput("token is required", nil)
	}
	return s.userRepo.RemoveDeviceToken(ctx, id, token)
}
