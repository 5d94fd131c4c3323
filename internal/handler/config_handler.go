package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pai-dashboard-go/internal/service"
)

// ConfigHandler 处理模型设置与预设相关的请求。
type ConfigHandler struct {
	service service.ConfigService
}

// NewConfigHandler 创建一个新的 ConfigHandler。
func NewConfigHandler(service service.ConfigService) *ConfigHandler {
	return &ConfigHandler{service: service}
}

// GetSettings 返回当前生效的模型设置。
func (h *ConfigHandler) GetSettings(c *gin.Context) {
	settings, err := h.service.GetSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// SaveSettings 校验并保存一组新的模型设置。
func (h *ConfigHandler) SaveSettings(c *gin.Context) {
	var req service.SettingsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadBody(c, err)
		return
	}

	id, err := h.service.SaveSettings(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "configId": id})
}

// ListPresets 返回固定的模型预设。
func (h *ConfigHandler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": h.service.ListPresets()})
}

// GetConfig 按 ID 返回一条历史配置。
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	cfg, err := h.service.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}
