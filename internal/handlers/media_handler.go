package handlers

import (
	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"

	"github.com/gin-gonic/gin"
)

type MediaHandler struct {
	mediaService services.MediaService
}

func NewMediaHandler(mediaService services.MediaService) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
	}
}

// Upload stores a message attachment and returns its URL.
func (h *MediaHandler) Upload(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "Missing file: "+err.Error())
		return
	}
	defer file.Close()

	result, err := h.mediaService.Upload(c.Request.Context(), &services.MediaUpload{
		OwnerID:  ownerID,
		Filename: header.Filename,
		Size:     header.Size,
		Reader:   file,
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Attachment uploaded", result)
}

// Delete removes an attachment the caller owns.
func (h *MediaHandler) Delete(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	key := c.Query("key")
	if key == "" {
		utils.BadRequestResponse(c, "Missing key")
		return
	}

	// Keys embed the owner id, only operators may delete others' files.
	if currentRole(c) != models.SenderRoleAdmin && !ownsKey(ownerID.Hex(), key) {
		utils.ForbiddenResponse(c)
		return
	}

	if err := h.mediaService.Delete(c.Request.Context(), key); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Attachment deleted", nil)
}

func ownsKey(ownerHex, key string) bool {
	return len(key) > len("media/")+len(ownerHex) && key[:6] == "media/" && key[6:6+len(ownerHex)] == ownerHex
}
