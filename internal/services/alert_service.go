package services

import (
	"context"
	"fmt"
	"time"

	"lifeline/internal/apperrors"
	"lifeline/internal/models"
	"lifeline/internal/repositories/interfaces"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"
	"lifeline/pkg/mailer"
	"lifeline/pkg/maps"
	"lifeline/pkg/push"
	"lifeline/pkg/sms"
	"lifeline/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertService interface {
	// Lifecycle. Raise reports whether it opened a new alert (true) or
	// extended the trail of one already active (false).
	Raise(ctx context.Context, username string, userID *primitive.ObjectID, request *models.RaiseAlertRequest) (*models.Alert, bool, error)
	Cancel(ctx context.Context, username string) (*models.Alert, error)
	Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID) (*models.Alert, error)

	// Queries
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)
	GetActiveForUser(ctx context.Context, username string) (*models.Alert, error)
	GetActive(ctx context.Context, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	GetHistory(ctx context.Context, username string, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	ListByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	GetNearby(ctx context.Context, request *models.NearbyAlertsRequest) ([]*models.Alert, error)
}

type alertService struct {
	alertRepo    interfaces.AlertRepository
	userRepo     interfaces.UserRepository
	geocoder     *maps.Gateway
	dispatcher   Dispatcher
	pushProvider push.PushProvider
	smsProvider  sms.SMSProvider
	mailProvider mailer.MailProvider
	log          *logger.Logger
}

func NewAlertService(
	alertRepo interfaces.AlertRepository,
	userRepo interfaces.UserRepository,
	geocoder *maps.Gateway,
	dispatcher Dispatcher,
	pushProvider push.PushProvider,
	smsProvider sms.SMSProvider,
	mailProvider mailer.MailProvider,
	log *logger.Logger,
) AlertService {
	return &alertService{
		alertRepo:    alertRepo,
		userRepo:     userRepo,
		geocoder:     geocoder,
		dispatcher:   dispatcher,
		pushProvider: pushProvider,
		smsProvider:  smsProvider,
		mailProvider: mailProvider,
		log:          log,
	}
}

// Raise opens a distress alert for the user, or extends the location
// trail of the one already active. The address comes from reverse
// geocoding and falls back to a placeholder when the lookup fails, a
// raise is never rejected because geocoding is down.
func (s *alertService) Raise(ctx context.Context, username string, userID *primitive.ObjectID, request *models.RaiseAlertRequest) (*models.Alert, bool, error) {
	if username == "" {
		return nil, false, apperrors.InvalidInput("username is required", nil)
	}
	if !utils.IsValidCoordinates(request.Latitude, request.Longitude) {
		return nil, false, apperrors.InvalidInput("invalid coordinates", map[string]string{
			"latitude":  fmt.Sprintf("%f", request.Latitude),
			"longitude": fmt.Sprintf("%f", request.Longitude),
		})
	}

	address, ok := s.geocoder.ReverseLookup(ctx, request.Latitude, request.Longitude)
	if !ok {
		s.log.WithUsername(username).Warn("reverse geocode failed, using fallback address")
	}

	point := models.LocationPoint{
		Latitude:  request.Latitude,
		Longitude: request.Longitude,
		Address:   address,
		Timestamp: time.Now(),
	}

	existing, err := s.alertRepo.GetActiveByUsername(ctx, username)
	if err == nil {
		updated, extendErr := s.extendAlert(ctx, existing, point)
		if extendErr == nil {
			return updated, false, nil
		}
		// The alert was cancelled or resolved between the lookup and
		// the append (or the lookup hit a stale cache entry). Fall
		// through and open a fresh alert instead of failing the raise.
		if !apperrors.IsCode(extendErr, apperrors.CodeNotFound) {
			return nil, false, extendErr
		}
	} else if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, false, err
	}

	alert := &models.Alert{
		Username:        username,
		UserID:          userID,
		Status:          models.AlertStatusActive,
		Location:        models.NewGeoPoint(point.Latitude, point.Longitude),
		Address:         point.Address,
		LocationHistory: []models.LocationPoint{point},
	}

	err = s.alertRepo.Create(ctx, alert)
	if apperrors.IsCode(err, apperrors.CodeConflict) {
		// Lost a race with another raise from the same user, fold this
		// position into the winner's trail.
		winner, getErr := s.alertRepo.GetActiveByUsername(ctx, username)
		if getErr != nil {
			return nil, false, getErr
		}
		updated, extendErr := s.extendAlert(ctx, winner, point)
		if extendErr != nil {
			return nil, false, extendErr
		}
		return updated, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.log.WithAlertID(alert.ID).WithUsername(username).Info("alert raised")

	s.publishAlert(EventAlertRaised, alert)
	go s.notifyResponders(alert)

	return alert, true, nil
}

func (s *alertService) extendAlert(ctx context.Context, alert *models.Alert, point models.LocationPoint) (*models.Alert, error) {
	updated, err := s.alertRepo.AppendLocation(ctx, alert.ID, point)
	if err != nil {
		return nil, err
	}

	s.publishAlert(EventAlertUpdated, updated)

	return updated, nil
}

// Cancel closes the caller's own active alert.
func (s *alertService) Cancel(ctx context.Context, username string) (*models.Alert, error) {
	alert, err := s.alertRepo.CancelActive(ctx, username)
	if err != nil {
		return nil, err
	}

	s.log.WithAlertID(alert.ID).WithUsername(username).Info("alert cancelled")

	s.publishAlert(EventAlertCancelled, alert)

	return alert, nil
}

// Resolve closes an alert on behalf of an operator.
func (s *alertService) Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID) (*models.Alert, error) {
	alert, err := s.alertRepo.Resolve(ctx, id, resolvedBy)
	if err != nil {
		return nil, err
	}

	s.log.WithAlertID(alert.ID).WithUserID(resolvedBy).Info("alert resolved")

	s.publishAlert(EventAlertResolved, alert)

	return alert, nil
}

func (s *alertService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	return s.alertRepo.GetByID(ctx, id)
}

func (s *alertService) GetActiveForUser(ctx context.Context, username string) (*models.Alert, error) {
	return s.alertRepo.GetActiveByUsername(ctx, username)
}

func (s *alertService) GetActive(ctx context.Context, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	return s.alertRepo.GetActive(ctx, params)
}

func (s *alertService) GetHistory(ctx context.Context, username string, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	return s.alertRepo.GetByUsername(ctx, username, params)
}

// ListByStatus pages through all alerts, optionally narrowed to one
// status, for the operators' history view.
func (s *alertService) ListByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	if status != "" {
		switch status {
		case models.AlertStatusActive, models.AlertStatusResolved, models.AlertStatusCancelled:
		default:
			return nil, 0, apperrors.InvalidInput("invalid status filter", map[string]string{"status": string(status)})
		}
	}
	return s.alertRepo.GetByStatus(ctx, status, params)
}

func (s *alertService) GetNearby(ctx context.Context, request *models.NearbyAlertsRequest) ([]*models.Alert, error) {
	if !utils.IsValidCoordinates(request.Latitude, request.Longitude) {
		return nil, apperrors.InvalidInput("invalid coordinates", nil)
	}

	radius := request.RadiusKM
	if radius <= 0 {
		radius = 5
	}

	return s.alertRepo.GetNearbyActive(ctx, request.Latitude, request.Longitude, radius)
}

// publishAlert pushes the event to the operators' room and to the
// owner's personal rooms.
func (s *alertService) publishAlert(event string, alert *models.Alert) {
	if s.dispatcher == nil {
		return
	}

	data := alert.Event()
	s.dispatcher.Publish(websocket.AdminsRoom, event, data)
	s.dispatcher.Publish(websocket.UserRoom(alert.Username), event, data)
	if alert.UserID != nil {
		s.dispatcher.Publish(websocket.UserIDRoom(alert.UserID.Hex()), event, data)
	}
}

// notifyResponders delivers best-effort push notifications to every
// operator and SMS to the owner's emergency contacts. Failures are
// logged and swallowed, the alert is already persisted.
func (s *alertService) notifyResponders(alert *models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	title := "Emergency alert"
	body := fmt.Sprintf("%s raised an alert near %s", alert.Username, alert.Address)

	if s.pushProvider != nil || s.mailProvider != nil {
		admins, err := s.userRepo.GetAdmins(ctx)
		if err != nil {
			s.log.WithError(err).Error("failed to load responders for fan-out")
		} else {
			if s.mailProvider != nil {
				s.mailResponders(ctx, admins, title, body)
			}
			var requests []*push.NotificationRequest
			for _, admin := range admins {
				for _, device := range admin.DeviceTokens {
					requests = append(requests, &push.NotificationRequest{
						Token:    device.Token,
						Title:    title,
						Body:     body,
						Priority: "high",
						Data: map[string]string{
							"alert_id": alert.ID.Hex(),
							"event":    EventAlertRaised,
						},
					})
				}
			}
			if s.pushProvider != nil && len(requests) > 0 {
				if _, err := s.pushProvider.SendBulkNotifications(ctx, requests); err != nil {
					s.log.WithError(err).Error("failed to push alert to responders")
				}
			}
		}
	}

	s.notifyContacts(ctx, alert)
}

// mailResponders emails the alert summary to every operator that has
// an address on file.
func (s *alertService) mailResponders(ctx context.Context, admins []*models.User, subject, body string) {
	var recipients []string
	for _, admin := range admins {
		if admin.Email != "" {
			recipients = append(recipients, admin.Email)
		}
	}
	if len(recipients) == 0 {
		return
	}

	err := s.mailProvider.SendMail(ctx, &mailer.MailRequest{
		To:      recipients,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.log.WithError(err).Error("failed to mail alert to responders")
	}
}

func (s *alertService) notifyContacts(ctx context.Context, alert *models.Alert) {
	if s.smsProvider != nil && alert.UserID != nil {
		owner, err := s.userRepo.GetByID(ctx, *alert.UserID)
		if err != nil {
			s.log.WithError(err).Error("failed to load owner for SMS fan-out")
			return
		}
		for _, contact := range owner.EmergencyContacts {
			_, err := s.smsProvider.SendSMS(ctx, &sms.SMSRequest{
				To:      contact.Phone,
				Message: fmt.Sprintf("%s needs help. Last known location: %s", owner.DisplayName(), alert.Address),
			})
			if err != nil {
				s.log.WithError(err).WithField("contact", contact.Name).Error("failed to send emergency SMS")
			}
		}
	}
}
