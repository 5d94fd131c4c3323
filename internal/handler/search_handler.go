package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/service"
)

// SearchHandler 负责处理消息搜索请求。
type SearchHandler struct {
	service service.ConversationService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(service service.ConversationService) *SearchHandler {
	return &SearchHandler{service: service}
}

// SearchMessages 处理 GET /api/chat/search?q=&limit= 请求。
func (h *SearchHandler) SearchMessages(c *gin.Context) {
	query := c.Query("q")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, apperror.Validation("limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	results, err := h.service.SearchMessages(c.Request.Context(), query, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
