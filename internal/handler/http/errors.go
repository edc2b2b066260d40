package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/service"
)

// HandleServiceError 把 Service 层和自动保存的错误映射为 HTTP 响应
func HandleServiceError(c *gin.Context, err error) {
	switch {
	// 自动保存的错误同时包装业务错误，业务错误优先
	case errors.Is(err, service.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, service.ErrForbidden.Error())
	case errors.Is(err, service.ErrAuthenticationFailed), errors.Is(err, autosave.ErrUnauthorized):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidContent), errors.Is(err, autosave.ErrValidation):
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrBookNotFound), errors.Is(err, service.ErrChapterNotFound),
		errors.Is(err, service.ErrUserNotFound), errors.Is(err, autosave.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEditSessionActive), errors.Is(err, service.ErrRegistrationFailed):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, autosave.ErrTransient):
		// 客户端保留内容稍后重试
		ErrorResponse(c, http.StatusServiceUnavailable, "save failed, please retry")
	default:
		// Log the internal error for debugging
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
