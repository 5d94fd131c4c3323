// Package server 负责组装依赖、注册路由并管理进程内各组件的生命周期。
package server

import (
	"github.com/gin-gonic/gin"

	"pai-dashboard-go/internal/handler"
	"pai-dashboard-go/internal/middleware"
)

// Handlers 汇总了路由需要的全部处理器。
type Handlers struct {
	Conversation *handler.ConversationHandler
	Search       *handler.SearchHandler
	Config       *handler.ConfigHandler
	Metrics      *handler.MetricsHandler
	Model        *handler.ModelHandler
	Channel      *handler.ChannelHandler
}

// NewRouter 创建 gin 引擎并注册全部路由。
func NewRouter(h Handlers, recorder middleware.RequestRecorder) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(
		middleware.RequestLogger(),
		middleware.RequestMetrics(recorder),
		gin.Recovery(),
		middleware.CORS(),
	)

	api := r.Group("/api")
	{
		chat := api.Group("/chat")
		{
			chat.POST("/conversations", h.Conversation.CreateConversation)
			chat.GET("/conversations", h.Conversation.ListConversations)
			chat.GET("/conversations/:id", h.Conversation.GetConversation)
			chat.PUT("/conversations/:id", h.Conversation.RenameConversation)
			chat.DELETE("/conversations/:id", h.Conversation.DeleteConversation)
			chat.POST("/conversations/:id/messages", h.Conversation.AppendMessage)
			chat.POST("/conversations/:id/export", h.Conversation.ExportConversation)
			chat.PUT("/messages/:id/feedback", h.Conversation.SetFeedback)
			chat.GET("/search", h.Search.SearchMessages)
		}

		cfg := api.Group("/config")
		{
			cfg.GET("/model-settings", h.Config.GetSettings)
			cfg.POST("/model-settings", h.Config.SaveSettings)
			cfg.GET("/model-presets", h.Config.ListPresets)
			cfg.GET("/model-configs/:id", h.Config.GetConfig)
		}

		models := api.Group("/models")
		{
			models.GET("", h.Model.ListModels)
			models.POST("/:modelId/load", h.Model.LoadModel)
			models.POST("/:modelId/unload", h.Model.UnloadModel)
		}

		api.GET("/metrics", h.Metrics.GetHostMetrics)
		monitoring := api.Group("/monitoring")
		{
			monitoring.GET("/metrics", h.Metrics.GetSnapshot)
			monitoring.GET("/resources", h.Metrics.GetResources)
			monitoring.GET("/model-status", h.Metrics.GetModelStatus)
		}
	}

	// 实时通道 (WebSocket)
	r.GET("/ws", h.Channel.Handle)
	r.GET("/", h.Channel.Handle)

	return r
}
