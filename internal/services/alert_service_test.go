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
	"lifeline/pkg/logger"
	"lifeline/pkg/maps"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[primitive.ObjectID]*models.Alert

	// beforeAppend, when set, runs before AppendLocation takes the lock.
	// Tests use it to squeeze a state change in between the service's
	// active-alert lookup and the append.
	beforeAppend func()
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[primitive.ObjectID]*models.Alert)}
}

func (f *fakeAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.alerts {
		if existing.Username == alert.Username && existing.Status == models.AlertStatusActive {
			return apperrors.Conflict("active alert already exists for this user")
		}
	}

	alert.ID = primitive.NewObjectID()
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = time.Now()
	clone := *alert
	f.alerts[alert.ID] = &clone
	return nil
}

func (f *fakeAlertRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	alert, ok := f.alerts[id]
	if !ok {
		return nil, apperrors.NotFound("alert not found")
	}
	clone := *alert
	return &clone, nil
}

func (f *fakeAlertRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeAlertRepo) GetActiveByUsername(ctx context.Context, username string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, alert := range f.alerts {
		if alert.Username == username && alert.Status == models.AlertStatusActive {
			clone := *alert
			return &clone, nil
		}
	}
	return nil, apperrors.NotFound("no active alert for this user")
}

func (f *fakeAlertRepo) GetActive(ctx context.Context, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Alert
	for _, alert := range f.alerts {
		if alert.Status == models.AlertStatusActive {
			clone := *alert
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAlertRepo) GetByUsername(ctx context.Context, username string, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Alert
	for _, alert := range f.alerts {
		if alert.Username == username {
			clone := *alert
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAlertRepo) GetByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Alert
	for _, alert := range f.alerts {
		if status == "" || alert.Status == status {
			clone := *alert
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAlertRepo) AppendLocation(ctx context.Context, id primitive.ObjectID, point models.LocationPoint) (*models.Alert, error) {
	if f.beforeAppend != nil {
		f.beforeAppend()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	alert, ok := f.alerts[id]
	if !ok || alert.Status != models.AlertStatusActive {
		return nil, apperrors.NotFound("no active alert to update")
	}

	alert.AppendLocation(point)
	alert.Location = models.NewGeoPoint(point.Latitude, point.Longitude)
	alert.Address = point.Address
	alert.UpdatedAt = time.Now()
	clone := *alert
	return &clone, nil
}

func (f *fakeAlertRepo) CancelActive(ctx context.Context, username string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, alert := range f.alerts {
		if alert.Username == username && alert.Status == models.AlertStatusActive {
			now := time.Now()
			alert.Status = models.AlertStatusCancelled
			alert.CancelledAt = &now
			alert.UpdatedAt = now
			clone := *alert
			return &clone, nil
		}
	}
	return nil, apperrors.NotFound("no active alert for this user")
}

func (f *fakeAlertRepo) Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	alert, ok := f.alerts[id]
	if !ok {
		return nil, apperrors.NotFound("alert not found")
	}
	if alert.Status != models.AlertStatusActive {
		return nil, apperrors.Conflict(fmt.Sprintf("alert is already %s", alert.Status))
	}

	now := time.Now()
	alert.Status = models.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = &resolvedBy
	alert.UpdatedAt = now
	clone := *alert
	return &clone, nil
}

func (f *fakeAlertRepo) GetNearbyActive(ctx context.Context, lat, lng, radiusKM float64) ([]*models.Alert, error) {
	active, _, _ := f.GetActive(ctx, nil)
	return active, nil
}

type fakeUserRepo struct {
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, apperrors.NotFound("user not found")
}

func (f *fakeUserRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeUserRepo) List(ctx context.Context, params *utils.PaginationParams) ([]*models.User, int64, error) {
	return nil, 0, nil
}

func (f *fakeUserRepo) AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error {
	user, ok := f.users[id]
	if !ok {
		return apperrors.NotFound("user not found")
	}
	user.DeviceTokens = append(user.DeviceTokens, token)
	return nil
}

func (f *fakeUserRepo) RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return nil
}

func (f *fakeUserRepo) GetAdmins(ctx context.Context) ([]*models.User, error) {
	var admins []*models.User
	for _, user := range f.users {
		if user.IsAdmin() {
			admins = append(admins, user)
		}
	}
	return admins, nil
}

type publishedEvent struct {
	Room  string
	Event string
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeDispatcher) Publish(room, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Room: room, Event: event})
}

func (f *fakeDispatcher) byEvent(event string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type stubGeocoder struct {
	address string
}

func (s *stubGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return s.address, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: "error", Format: "text"})
	require.NoError(t, err)
	return log
}

func newTestAlertService(t *testing.T) (AlertService, *fakeAlertRepo, *fakeUserRepo, *fakeDispatcher) {
	t.Helper()
	alertRepo := newFakeAlertRepo()
	userRepo := newFakeUserRepo()
	dispatcher := &fakeDispatcher{}
	geocoder := maps.NewGateway(&stubGeocoder{address: "221B Baker Street"}, time.Second, utils.AddressUnavailable)

	svc := NewAlertService(alertRepo, userRepo, geocoder, dispatcher, nil, nil, nil, testLogger(t))
	return svc, alertRepo, userRepo, dispatcher
}

func TestRaiseCreatesActiveAlert(t *testing.T) {
	svc, _, _, dispatcher := newTestAlertService(t)

	alert, created, err := svc.Raise(context.Background(), "alice", nil, &models.RaiseAlertRequest{
		Latitude:  51.5237,
		Longitude: -0.1586,
	})
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, models.AlertStatusActive, alert.Status)
	assert.Equal(t, "alice", alert.Username)
	assert.Equal(t, "221B Baker Street", alert.Address)
	require.Len(t, alert.LocationHistory, 1)
	assert.Equal(t, 51.5237, alert.LocationHistory[0].Latitude)

	raised := dispatcher.byEvent(EventAlertRaised)
	assert.NotEmpty(t, raised)
}

func TestRaiseWhileActiveExtendsTrail(t *testing.T) {
	svc, _, _, dispatcher := newTestAlertService(t)
	ctx := context.Background()

	first, created, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 10, Longitude: 20})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 11, Longitude: 21})
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.LocationHistory, 2)
	assert.Equal(t, 11.0, second.LocationHistory[1].Latitude)
	assert.Equal(t, 11.0, second.Location.Latitude())

	assert.Len(t, dispatcher.byEvent(EventAlertRaised), 2) // admins room + user room
	assert.NotEmpty(t, dispatcher.byEvent(EventAlertUpdated))
}

func TestRaiseSurvivesCancelDuringExtend(t *testing.T) {
	svc, repo, _, _ := newTestAlertService(t)
	ctx := context.Background()

	first, _, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 10, Longitude: 20})
	require.NoError(t, err)

	// Close the alert after the raise has already found it active, so
	// the trail append loses the race against the cancel.
	repo.beforeAppend = func() {
		repo.beforeAppend = nil
		_, cancelErr := repo.CancelActive(ctx, "alice")
		require.NoError(t, cancelErr)
	}

	fresh, created, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 11, Longitude: 21})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Equal(t, models.AlertStatusActive, fresh.Status)
	require.Len(t, fresh.LocationHistory, 1)
	assert.Equal(t, 11.0, fresh.LocationHistory[0].Latitude)
}

func TestRaiseTrimsLocationHistory(t *testing.T) {
	svc, _, _, _ := newTestAlertService(t)
	ctx := context.Background()

	var last *models.Alert
	for i := 0; i < models.MaxLocationHistory+10; i++ {
		alert, _, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{
			Latitude:  float64(i%80) + 0.5,
			Longitude: 20,
		})
		require.NoError(t, err)
		last = alert
	}

	require.Len(t, last.LocationHistory, models.MaxLocationHistory)
	// The oldest entries fell off, the newest is the final raise.
	assert.Equal(t, float64((models.MaxLocationHistory+9)%80)+0.5, last.LocationHistory[models.MaxLocationHistory-1].Latitude)
}

func TestRaiseRejectsBadCoordinates(t *testing.T) {
	svc, _, _, _ := newTestAlertService(t)

	_, _, err := svc.Raise(context.Background(), "alice", nil, &models.RaiseAlertRequest{
		Latitude:  123.0,
		Longitude: 20,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
}

func TestCancelWithoutActiveAlert(t *testing.T) {
	svc, _, _, _ := newTestAlertService(t)

	_, err := svc.Cancel(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestCancelClosesAlert(t *testing.T) {
	svc, _, _, dispatcher := newTestAlertService(t)
	ctx := context.Background()

	_, _, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 10, Longitude: 20})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.NotEmpty(t, dispatcher.byEvent(EventAlertCancelled))

	// A new raise opens a fresh alert with its own trail.
	fresh, created, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 12, Longitude: 22})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, cancelled.ID, fresh.ID)
	assert.Len(t, fresh.LocationHistory, 1)
}

func TestResolveTerminalAlertConflicts(t *testing.T) {
	svc, repo, _, _ := newTestAlertService(t)
	ctx := context.Background()
	adminID := primitive.NewObjectID()

	alert, _, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 10, Longitude: 20})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, alert.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, adminID, *resolved.ResolvedBy)

	_, err = svc.Resolve(ctx, alert.ID, primitive.NewObjectID())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	// The losing resolve must not touch the stored record.
	stored, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.ResolvedAt.Equal(*resolved.ResolvedAt))
	assert.Equal(t, adminID, *stored.ResolvedBy)
}

func TestResolveUnknownAlert(t *testing.T) {
	svc, _, _, _ := newTestAlertService(t)

	_, err := svc.Resolve(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestOneActiveAlertPerUser(t *testing.T) {
	svc, repo, _, _ := newTestAlertService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: float64(i), Longitude: 20})
		require.NoError(t, err)
	}

	active, _, err := repo.GetActive(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestListByStatusFiltersHistory(t *testing.T) {
	svc, _, _, _ := newTestAlertService(t)
	ctx := context.Background()
	adminID := primitive.NewObjectID()

	alert, _, err := svc.Raise(ctx, "alice", nil, &models.RaiseAlertRequest{Latitude: 10, Longitude: 20})
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, alert.ID, adminID)
	require.NoError(t, err)

	_, _, err = svc.Raise(ctx, "bob", nil, &models.RaiseAlertRequest{Latitude: 11, Longitude: 21})
	require.NoError(t, err)

	resolved, total, err := svc.ListByStatus(ctx, models.AlertStatusResolved, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, resolved, 1)
	assert.Equal(t, "alice", resolved[0].Username)

	all, total, err := svc.ListByStatus(ctx, "", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	_, _, err = svc.ListByStatus(ctx, "exploded", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
}

func TestGeocodeFallbackNeverBlocksRaise(t *testing.T) {
	alertRepo := newFakeAlertRepo()
	geocoder := maps.NewGateway(nil, time.Second, utils.AddressUnavailable)
	svc := NewAlertService(alertRepo, newFakeUserRepo(), geocoder, &fakeDispatcher{}, nil, nil, nil, testLogger(t))

	alert, _, err := svc.Raise(context.Background(), "alice", nil, &models.RaiseAlertRequest{Latitude: 10, Longitude: 20})
	require.NoError(t, err)
	assert.Equal(t, utils.AddressUnavailable, alert.Address)
}
