package service

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"

	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/pkg/log"
	"pai-dashboard-go/pkg/tasks"
)

// Responder 生成助手回复。
type Responder interface {
	Respond(ctx context.Context, message string, options map[string]interface{}) (string, error)
}

// EchoResponder 在固定延迟后回显用户消息，不做任何推理。
type EchoResponder struct {
	Delay time.Duration
}

func (r EchoResponder) Respond(ctx context.Context, message string, _ map[string]interface{}) (string, error) {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "Processed: " + message, nil
}

// ChatReply 是一次 chat 处理的结果。
type ChatReply struct {
	Content        string
	ConversationID string
	MessageID      string
	Tokens         int
	ProcessingTime int64 // 毫秒
	Timestamp      time.Time
}

// ChatService 定义了实时通道中聊天消息的处理接口。
type ChatService interface {
	// StartConversation 为新连接创建会话并返回其 ID。
	StartConversation(ctx context.Context) (string, error)
	ProcessChat(ctx context.Context, conversationID, message string, options map[string]interface{}) (*ChatReply, error)
}

type chatService struct {
	conversations ConversationService
	responder     Responder
	metrics       MetricRecorder
	now           func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(conversations ConversationService, responder Responder, metrics MetricRecorder) ChatService {
	return &chatService{
		conversations: conversations,
		responder:     responder,
		metrics:       metrics,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) StartConversation(ctx context.Context) (string, error) {
	conv, err := s.conversations.CreateConversation(ctx, "", "")
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

// ProcessChat 保存用户消息，生成并保存助手回复，然后尽力记录性能指标。
func (s *chatService) ProcessChat(ctx context.Context, conversationID, message string, options map[string]interface{}) (*ChatReply, error) {
	if _, err := s.conversations.AppendMessage(ctx, conversationID, model.RoleUser, message, nil); err != nil {
		return nil, err
	}

	start := s.now()
	content, err := s.responder.Respond(ctx, message, options)
	if err != nil {
		return nil, err
	}
	elapsed := s.now().Sub(start).Milliseconds()

	reply, err := s.conversations.AppendMessage(ctx, conversationID, model.RoleAssistant, content, &elapsed)
	if err != nil {
		return nil, err
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	task := tasks.PerformanceMetricTask{
		MetricID:     uuid.NewString(),
		MessageID:    reply.ID,
		ResponseTime: elapsed,
		TokenCount:   reply.Tokens,
		MemoryUsage:  mem.HeapAlloc,
		Timestamp:    reply.CreatedAt,
	}
	if err := s.metrics.Record(ctx, task); err != nil {
		log.Warnw("Failed to record performance metric", "messageId", reply.ID, "error", err)
	}

	return &ChatReply{
		Content:        reply.Content,
		ConversationID: conversationID,
		MessageID:      reply.ID,
		Tokens:         reply.Tokens,
		ProcessingTime: elapsed,
		Timestamp:      reply.CreatedAt,
	}, nil
}
