package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/service"
)

// ConversationHandler 处理与会话和消息相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// CreateConversationRequest 是创建会话的请求体，所有字段可选。
type CreateConversationRequest struct {
	Title  string `json:"title"`
	UserID string `json:"userId"`
}

// AppendMessageRequest 是追加消息的请求体。
type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RenameConversationRequest 是修改会话标题的请求体。
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// FeedbackRequest 是消息反馈的请求体。
type FeedbackRequest struct {
	Feedback *int `json:"feedback"`
}

// CreateConversation 创建一个新会话。请求体可以为空。
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadBody(c, err)
		return
	}

	conv, err := h.service.CreateConversation(c.Request.Context(), req.Title, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": conv.ID})
}

// AppendMessage 向会话追加一条消息。
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadBody(c, err)
		return
	}

	msg, err := h.service.AppendMessage(c.Request.Context(), c.Param("id"), req.Role, req.Content, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": msg.ID})
}

// GetConversation 返回会话元数据及其按时间升序的消息。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, messages, err := h.service.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

// ListConversations 按最近更新时间倒序返回全部会话。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	convs, err := h.service.ListConversations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// DeleteConversation 删除会话及其消息，重复删除同样返回成功。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RenameConversation 修改会话标题。
func (h *ConversationHandler) RenameConversation(c *gin.Context) {
	var req RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadBody(c, err)
		return
	}
	if err := h.service.RenameConversation(c.Request.Context(), c.Param("id"), req.Title); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExportConversation 把会话导出到对象存储。
func (h *ConversationHandler) ExportConversation(c *gin.Context) {
	res, err := h.service.ExportConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SetFeedback 记录对某条消息的反馈。
func (h *ConversationHandler) SetFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadBody(c, err)
		return
	}
	if req.Feedback == nil {
		respondError(c, apperror.Validation("feedback", "feedback is required"))
		return
	}
	if err := h.service.SetFeedback(c.Request.Context(), c.Param("id"), *req.Feedback); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
