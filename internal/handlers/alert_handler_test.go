package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// stubAlertService is a raise-focused stand-in. Everything else is
// unused by the handler tests and returns NotFound.
type stubAlertService struct {
	raise func(ctx context.Context, username string, userID *primitive.ObjectID, request *models.RaiseAlertRequest) (*models.Alert, bool, error)
}

func (s *stubAlertService) Raise(ctx context.Context, username string, userID *primitive.ObjectID, request *models.RaiseAlertRequest) (*models.Alert, bool, error) {
	return s.raise(ctx, username, userID, request)
}

func (s *stubAlertService) Cancel(ctx context.Context, username string) (*models.Alert, error) {
	return nil, apperrors.NotFound("no active alert for this user")
}

func (s *stubAlertService) Resolve(ctx context.Context, id, resolvedBy primitive.ObjectID) (*models.Alert, error) {
	return nil, apperrors.NotFound("alert not found")
}

func (s *stubAlertService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	return nil, apperrors.NotFound("alert not found")
}

func (s *stubAlertService) GetActiveForUser(ctx context.Context, username string) (*models.Alert, error) {
	return nil, apperrors.NotFound("no active alert for this user")
}

func (s *stubAlertService) GetActive(ctx context.Context, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	return nil, 0, nil
}

func (s *stubAlertService) GetHistory(ctx context.Context, username string, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	return nil, 0, nil
}

func (s *stubAlertService) ListByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	return nil, 0, nil
}

func (s *stubAlertService) GetNearby(ctx context.Context, request *models.NearbyAlertsRequest) ([]*models.Alert, error) {
	return nil, nil
}

func authAs(userID primitive.ObjectID, username, userType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("username", username)
		c.Set("user_type", userType)
	}
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var response utils.APIResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestRaiseRespondsCreatedThenUpdated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	userID := primitive.NewObjectID()
	alert := &models.Alert{ID: primitive.NewObjectID(), Username: "alice", Status: models.AlertStatusActive}

	calls := 0
	handler := NewAlertHandler(&stubAlertService{
		raise: func(ctx context.Context, username string, _ *primitive.ObjectID, _ *models.RaiseAlertRequest) (*models.Alert, bool, error) {
			calls++
			return alert, calls == 1, nil
		},
	})

	router := gin.New()
	router.POST("/alerts", authAs(userID, "alice", "user"), handler.Raise)

	body := `{"latitude": 51.5, "longitude": -0.15}`

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("POST", "/alerts", strings.NewReader(body)))
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "Alert raised", decodeResponse(t, first).Message)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("POST", "/alerts", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "Alert updated", decodeResponse(t, second).Message)
}
