package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pai-dashboard-go/internal/monitor"
)

// MetricsSource 提供可拉取的指标，由 monitor.Reporter 实现。
type MetricsSource interface {
	HostMetrics() monitor.HostMetrics
	Snapshot() monitor.Snapshot
	ResourceUtilization() monitor.Utilization
	ModelStatus() monitor.ModelStatus
}

// MetricsHandler 负责处理监控相关的请求。
type MetricsHandler struct {
	source MetricsSource
}

// NewMetricsHandler 创建一个新的 MetricsHandler。
func NewMetricsHandler(source MetricsSource) *MetricsHandler {
	return &MetricsHandler{source: source}
}

// GetHostMetrics 返回 {cpu, memory, timestamp}。
func (h *MetricsHandler) GetHostMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.HostMetrics())
}

// GetSnapshot 返回完整的指标快照。
func (h *MetricsHandler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Snapshot())
}

// GetResources 返回资源使用率。
func (h *MetricsHandler) GetResources(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.ResourceUtilization())
}

// GetModelStatus 返回服务存活状态。
func (h *MetricsHandler) GetModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.ModelStatus())
}
