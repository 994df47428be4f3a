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

type alertRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewAlertRepository(db *mongo.Database, cache CacheService) interfaces.AlertRepository {
	return &alertRepository{
		collection: db.Collection("alerts"),
		cache:      cache,
	}
}

// Create inserts a new alert. The partial unique index on
// {username, status: "active"} rejects a second active alert for the
// same owner, which surfaces here as a conflict.
func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) error {
	alert.ID = primitive.NewObjectID()
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict("active alert already exists for this user")
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}

	if alert.Status == models.AlertStatusActive {
		r.cacheActiveAlert(ctx, alert)
	}

	return nil
}

func (r *alertRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	var alert models.Alert
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("alert not found")
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return &alert, nil
}

func (r *alertRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("alert not found")
	}

	return nil
}

func (r *alertRepository) GetActiveByUsername(ctx context.Context, username string) (*models.Alert, error) {
	if alert := r.getActiveAlertFromCache(ctx, username); alert != nil {
		return alert, nil
	}

	var alert models.Alert
	filter := bson.M{
		"username": username,
		"status":   models.AlertStatusActive,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("no active alert for this user")
		}
		return nil, fmt.Errorf("failed to get active alert: %w", err)
	}

	r.cacheActiveAlert(ctx, &alert)

	return &alert, nil
}

func (r *alertRepository) GetActive(ctx context.Context, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	filter := bson.M{"status": models.AlertStatusActive}
	return r.findAlertsWithFilter(ctx, filter, params)
}

func (r *alertRepository) GetByUsername(ctx context.Context, username string, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	filter := bson.M{"username": username}
	return r.findAlertsWithFilter(ctx, filter, params)
}

func (r *alertRepository) GetByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return r.findAlertsWithFilter(ctx, filter, params)
}

// AppendLocation pushes a point onto the location trail, keeping only
// the most recent entries, and moves the alert's current position.
func (r *alertRepository) AppendLocation(ctx context.Context, id primitive.ObjectID, point models.LocationPoint) (*models.Alert, error) {
	update := bson.M{
		"$push": bson.M{
			"location_history": bson.M{
				"$each":  []models.LocationPoint{point},
				"$slice": -models.MaxLocationHistory,
			},
		},
		"$set": bson.M{
			"location":   models.NewGeoPoint(point.Latitude, point.Longitude),
			"address":    point.Address,
			"updated_at": time.Now(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"_id": id, "status": models.AlertStatusActive}

	var alert models.Alert
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("no active alert to update")
		}
		return nil, fmt.Errorf("failed to append location: %w", err)
	}

	r.cacheActiveAlert(ctx, &alert)

	return &alert, nil
}

// CancelActive moves the owner's active alert to cancelled. The filter
// includes the active status so a concurrent transition loses cleanly.
func (r *alertRepository) CancelActive(ctx context.Context, username string) (*models.Alert, error) {
	now := time.Now()
	filter := bson.M{
		"username": username,
		"status":   models.AlertStatusActive,
	}
	update := bson.M{
		"$set": bson.M{
			"status":       models.AlertStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var alert models.Alert
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("no active alert for this user")
		}
		return nil, fmt.Errorf("failed to cancel alert: %w", err)
	}

	r.invalidateActiveAlertCache(ctx, username)

	return &alert, nil
}

// Resolve moves an active alert to resolved. A resolve on a terminal
// alert reports a conflict, a resolve on an unknown id reports not
// found.
func (r *alertRepository) Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID) (*models.Alert, error) {
	now := time.Now()
	filter := bson.M{
		"_id":    id,
		"status": models.AlertStatusActive,
	}
	update := bson.M{
		"$set": bson.M{
			"status":      models.AlertStatusResolved,
			"resolved_at": now,
			"resolved_by": resolvedBy,
			"updated_at":  now,
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var alert models.Alert
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&alert)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			return nil, fmt.Errorf("failed to resolve alert: %w", err)
		}

		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.Conflict(fmt.Sprintf("alert is already %s", existing.Status))
	}

	r.invalidateActiveAlertCache(ctx, alert.Username)

	return &alert, nil
}

func (r *alertRepository) GetNearbyActive(ctx context.Context, lat, lng, radiusKM float64) ([]*models.Alert, error) {
	filter := bson.M{
		"status": models.AlertStatusActive,
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry":    models.NewGeoPoint(lat, lng),
				"$maxDistance": radiusKM * 1000,
			},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	for cursor.Next(ctx) {
		var alert models.Alert
		if err := cursor.Decode(&alert); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	return alerts, nil
}

// Helper methods
func (r *alertRepository) findAlertsWithFilter(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	if params.Search != "" {
		searchFields := []string{"username", "address"}
		filter = bson.M{
			"$and": []bson.M{
				filter,
				params.GetSearchFilter(searchFields),
			},
		}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	opts := params.GetSortOptions()
	if params.Sort == "created_at" || params.Sort == "" {
		opts.SetSort(bson.D{{Key: "created_at", Value: -1}})
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	for cursor.Next(ctx) {
		var alert models.Alert
		if err := cursor.Decode(&alert); err != nil {
			return nil, 0, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	return alerts, total, nil
}

// Cache operations
func (r *alertRepository) cacheActiveAlert(ctx context.Context, alert *models.Alert) {
	if r.cache != nil && alert.Status == models.AlertStatusActive {
		cacheKey := fmt.Sprintf("alert:active:%s", alert.Username)
		r.cache.Set(ctx, cacheKey, alert, 2*time.Minute)
	}
}

func (r *alertRepository) getActiveAlertFromCache(ctx context.Context, username string) *models.Alert {
	if r.cache == nil {
		return nil
	}

	cacheKey := fmt.Sprintf("alert:active:%s", username)
	var alert models.Alert
	err := r.cache.Get(ctx, cacheKey, &alert)
	if err != nil {
		return nil
	}

	return &alert
}

func (r *alertRepository) invalidateActiveAlertCache(ctx context.Context, username string) {
	if r.cache != nil {
		cacheKey := fmt.Sprintf("alert:active:%s", username)
		r.cache.Delete(ctx, cacheKey)
	}
}
