package utils

import (
	"errors"
	"net/http"
	"time"

	"lifeline/internal/apperrors"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
	Total      int64           `json:"total,omitempty"`
	Count      int             `json:"count,omitempty"`
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now(),
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now(),
	})
}

func ErrorResponseWithDetails(c *gin.Context, statusCode int, code, message string, details map[string]string) {
	c.JSON(statusCode, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, string(apperrors.CodeInvalidInput), ErrValidationFailed, errors)
}

func UnauthorizedResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusUnauthorized, string(apperrors.CodeUnauthenticated), ErrUnauthorized)
}

func ForbiddenResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusForbidden, string(apperrors.CodeUnauthorized), ErrForbidden)
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, string(apperrors.CodeInvalidInput), message)
}

func InternalServerErrorResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, string(apperrors.CodeInternal), ErrInternalServer)
}

// AppErrorResponse maps a service-layer error to its HTTP status.
// Unauthenticated/Unauthorized deliberately reuse the generic messages
// so callers cannot tell whether a target entity exists.
func AppErrorResponse(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)

	switch code {
	case apperrors.CodeInvalidInput:
		ErrorResponseWithDetails(c, http.StatusBadRequest, string(code), errMessage(err), apperrors.DetailsOf(err))
	case apperrors.CodeNotFound:
		ErrorResponse(c, http.StatusNotFound, string(code), errMessage(err))
	case apperrors.CodeConflict:
		ErrorResponse(c, http.StatusConflict, string(code), errMessage(err))
	case apperrors.CodeUnauthenticated:
		UnauthorizedResponse(c)
	case apperrors.CodeUnauthorized:
		ForbiddenResponse(c)
	default:
		InternalServerErrorResponse(c)
	}
}

func errMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
