// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/pkg/log"
)

// respondError 把业务错误转换为 HTTP 响应。存储错误只返回通用信息，细节写入日志。
func respondError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		log.Errorw("Unhandled request error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	switch appErr.Code {
	case apperror.CodeValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": appErr.Reason, "field": appErr.Field})
	case apperror.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": appErr.Reason})
	case apperror.CodeUnavailable:
		log.Warnw("Backend unavailable", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": appErr.Reason})
	default:
		log.Errorw("Request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// respondBadBody 用于请求体无法解析的情况。
func respondBadBody(c *gin.Context, err error) {
	log.Warnf("Invalid request payload on %s: %v", c.Request.URL.Path, err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "field": "body"})
}
