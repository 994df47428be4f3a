package handlers

import (
	"time"

	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService services.UserService
	jwtSecret   string
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func NewUserHandler(userService services.UserService, jwtSecret string, accessTTL, refreshTTL time.Duration) *UserHandler {
	return &UserHandler{
		userService: userService,
		jwtSecret:   jwtSecret,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}
}

// Register creates an account and hands back a token pair.
func (h *UserHandler) Register(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	// Role is never taken from the request body.
	user.Role = models.UserRoleUser

	created, err := h.userService.Register(c.Request.Context(), &user)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	tokens, err := utils.GenerateTokenPair(created.ID, created.Username, created.FullName, string(created.Role), h.jwtSecret, h.accessTTL, h.refreshTTL)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.CreatedResponse(c, "User registered", gin.H{
		"user":   created,
		"tokens": tokens,
	})
}

// GetProfile returns the caller's own record.
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Profile retrieved", user)
}

// UpdateProfile applies profile changes for the caller.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, updates)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Profile updated", user)
}

// List returns the user directory for operators.
func (h *UserHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	users, total, err := h.userService.List(c.Request.Context(), params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Users retrieved", users, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(users),
	})
}

// RegisterDevice adds a push notification target for the caller.
func (h *UserHandler) RegisterDevice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request models.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.userService.RegisterDevice(c.Request.Context(), userID, &request); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Device registered", nil)
}

// UnregisterDevice removes a push notification target.
func (h *UserHandler) UnregisterDevice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	if err := h.userService.UnregisterDevice(c.Request.Context(), userID, c.Query("token")); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Device unregistered", nil)
}
