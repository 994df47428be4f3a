package handlers

import (
	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertHandler struct {
	alertService services.AlertService
}

func NewAlertHandler(alertService services.AlertService) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
	}
}

// Raise opens an alert for the caller or extends the active one.
func (h *AlertHandler) Raise(c *gin.Context) {
	var request models.RaiseAlertRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	username, ok := currentUsername(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var userID *primitive.ObjectID
	if id, ok := currentUserID(c); ok {
		userID = &id
	}

	alert, created, err := h.alertService.Raise(c.Request.Context(), username, userID, &request)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	if created {
		utils.CreatedResponse(c, "Alert raised", alert)
		return
	}
	utils.SuccessResponse(c, "Alert updated", alert)
}

// Cancel closes the caller's own active alert.
func (h *AlertHandler) Cancel(c *gin.Context) {
	username, ok := currentUsername(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	alert, err := h.alertService.Cancel(c.Request.Context(), username)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alert cancelled", alert)
}

// Resolve closes an alert on behalf of an operator.
func (h *AlertHandler) Resolve(c *gin.Context) {
	alertID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid alert ID")
		return
	}

	adminID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	alert, err := h.alertService.Resolve(c.Request.Context(), alertID, adminID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alert resolved", alert)
}

// GetActive returns the caller's active alert, if any.
func (h *AlertHandler) GetActive(c *gin.Context) {
	username, ok := currentUsername(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	alert, err := h.alertService.GetActiveForUser(c.Request.Context(), username)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Active alert retrieved", alert)
}

// GetHistory returns the caller's past alerts.
func (h *AlertHandler) GetHistory(c *gin.Context) {
	username, ok := currentUsername(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	alerts, total, err := h.alertService.GetHistory(c.Request.Context(), username, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Alert history retrieved", alerts, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(alerts),
	})
}

// ListActive returns every active alert, for the operators' board.
func (h *AlertHandler) ListActive(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	alerts, total, err := h.alertService.GetActive(c.Request.Context(), params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Active alerts retrieved", alerts, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(alerts),
	})
}

// ListHistory pages through all alerts for the operators' history
// view, optionally filtered by status.
func (h *AlertHandler) ListHistory(c *gin.Context) {
	status := models.AlertStatus(c.Query("status"))
	params := utils.GetPaginationParams(c)

	alerts, total, err := h.alertService.ListByStatus(c.Request.Context(), status, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Alerts retrieved", alerts, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(alerts),
	})
}

// GetByID returns a single alert.
func (h *AlertHandler) GetByID(c *gin.Context) {
	alertID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid alert ID")
		return
	}

	alert, err := h.alertService.GetByID(c.Request.Context(), alertID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alert retrieved", alert)
}

// GetNearby returns active alerts around a position.
func (h *AlertHandler) GetNearby(c *gin.Context) {
	var request models.NearbyAlertsRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	alerts, err := h.alertService.GetNearby(c.Request.Context(), &request)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Nearby alerts retrieved", alerts)
}
