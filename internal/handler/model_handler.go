package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pai-dashboard-go/pkg/log"
)

// ModelHandler 提供模型管理接口。服务不做推理，这些接口只确认请求。
type ModelHandler struct{}

// NewModelHandler 创建一个新的 ModelHandler。
func NewModelHandler() *ModelHandler {
	return &ModelHandler{}
}

// ListModels 返回可用模型列表，当前总是为空。
func (h *ModelHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": []string{}})
}

// LoadModel 确认加载请求。
func (h *ModelHandler) LoadModel(c *gin.Context) {
	modelID := c.Param("modelId")
	log.Infow("Model load requested", "modelId", modelID)
	c.JSON(http.StatusOK, gin.H{"status": "loading", "modelId": modelID})
}

// UnloadModel 确认卸载请求。
func (h *ModelHandler) UnloadModel(c *gin.Context) {
	modelID := c.Param("modelId")
	log.Infow("Model unload requested", "modelId", modelID)
	c.JSON(http.StatusOK, gin.H{"status": "unloaded", "modelId": modelID})
}
