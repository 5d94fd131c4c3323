package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pai-dashboard-go/internal/channel"
	"pai-dashboard-go/internal/config"
	"pai-dashboard-go/internal/service"
	"pai-dashboard-go/pkg/log"
	"pai-dashboard-go/pkg/retry"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ConnectionTracker 维护连接数与信封计数，由 monitor.Reporter 实现。
type ConnectionTracker interface {
	channel.Counters
	ConnectionOpened()
	ConnectionClosed()
}

// ChannelHandler 负责处理实时通道的 WebSocket 连接。
type ChannelHandler struct {
	chatService service.ChatService
	tracker     ConnectionTracker
	cfg         config.ChannelConfig
}

// NewChannelHandler 创建一个新的 ChannelHandler。
func NewChannelHandler(chatService service.ChatService, tracker ConnectionTracker, cfg config.ChannelConfig) *ChannelHandler {
	return &ChannelHandler{
		chatService: chatService,
		tracker:     tracker,
		cfg:         cfg,
	}
}

// Handle 处理一个传入的 WebSocket 连接：创建会话，然后读循环把帧交给 Session 顺序处理。
func (h *ChannelHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	h.tracker.ConnectionOpened()
	defer h.tracker.ConnectionClosed()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conversationID, err := h.chatService.StartConversation(ctx)
	if err != nil {
		log.Errorf("为新连接创建会话失败: %v", err)
		_ = conn.WriteJSON(channel.Error{Type: channel.TypeError, Error: "Failed to start conversation", Timestamp: time.Now().UnixMilli()})
		return
	}
	log.Infof("WebSocket 连接已建立，会话: %s", conversationID)

	sender := channel.NewConnSender(conn, h.cfg.WriteTimeout)
	session := channel.NewSession(conversationID, h.chatService, sender, h.tracker, channel.Options{
		ChunkSize:     h.cfg.ChunkSize,
		QueueSize:     h.cfg.QueueSize,
		Retry:         retry.Policy{MaxRetries: h.cfg.MaxRetries, Delay: h.cfg.RetryDelay},
		HandleTimeout: h.cfg.HandleTimeout,
	})
	if err := session.Greet(ctx); err != nil {
		log.Warnf("发送连接状态失败: %v", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		session.Run(ctx)
	}()
	// 服务停机时 ctx 被取消，关闭连接以结束下面的读循环
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = conn.Close()
	}()
	if h.cfg.PingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			channel.KeepAlive(ctx, conn, h.cfg.PingInterval, h.cfg.WriteTimeout)
		}()
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}
		if !session.Enqueue(message) {
			break
		}
	}

	session.Close()
	cancel()
	wg.Wait()
	log.Infof("WebSocket 连接已关闭，会话: %s", conversationID)
}
