// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"ai-story-writer-api/internal/interfaces/http/dto"
	apperrors "ai-story-writer-api/pkg/errors"
	"ai-story-writer-api/pkg/logger"
)

// respondError 按业务错误码映射 HTTP 状态返回错误响应
func respondError(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(ctx, fallback, err)
		}
		dto.FromAppError(c, appErr)
		return
	}
	logger.Error(ctx, fallback, err)
	dto.InternalError(c, fallback)
}
