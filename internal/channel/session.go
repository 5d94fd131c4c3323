package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/service"
	"pai-dashboard-go/pkg/log"
	"pai-dashboard-go/pkg/retry"
)

// Counters 接收通道的计数事件，由 monitor.Reporter 实现。
// 每个入站信封的处理耗时与 HTTP 请求一样经 RecordRequest 计入延迟窗口。
type Counters interface {
	MessageReceived()
	MessageSent()
	ActiveConnections() int64
	RecordRequest(latency time.Duration, isError bool)
}

// Options 是 Session 的参数。
type Options struct {
	ChunkSize     int
	QueueSize     int
	Retry         retry.Policy
	HandleTimeout time.Duration
	Now           func() time.Time
}

type item struct {
	env      Inbound
	parseErr error
}

// Session 是一个连接的处理状态。Enqueue 由读 goroutine 调用，
// 其余处理（包括全部数据帧写入）都在 Run 所在的 goroutine 中完成。
type Session struct {
	conversationID string
	chat           service.ChatService
	sender         Sender
	counters       Counters
	opts           Options

	queue     chan item
	done      chan struct{}
	closeOnce sync.Once

	// 仅由 Run 所在 goroutine 访问
	buf []rune
}

// NewSession 为 conversationID 对应的连接创建会话处理器。
func NewSession(conversationID string, chat service.ChatService, sender Sender, counters Counters, opts Options) *Session {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		conversationID: conversationID,
		chat:           chat,
		sender:         sender,
		counters:       counters,
		opts:           opts,
		queue:          make(chan item, opts.QueueSize),
		done:           make(chan struct{}),
	}
}

// ConversationID 返回连接建立时创建的会话 ID。
func (s *Session) ConversationID() string {
	return s.conversationID
}

// Enqueue 解析一帧并放入队列。队列满时阻塞；会话关闭后返回 false。
func (s *Session) Enqueue(raw []byte) bool {
	var it item
	if err := json.Unmarshal(raw, &it.env); err != nil {
		it.parseErr = err
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- it:
		s.counters.MessageReceived()
		return true
	case <-s.done:
		return false
	}
}

// Close 停止会话。未处理的信封与流式缓冲区会被丢弃。可以重复调用。
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Greet 发送连接建立的状态信封。必须在 Run 之前调用。
func (s *Session) Greet(ctx context.Context) error {
	return s.send(ctx, TypeStatus, Status{
		Type:           TypeStatus,
		Status:         "connected",
		Timestamp:      s.now(),
		ConversationID: s.conversationID,
	})
}

// Run 逐个处理队列中的信封，直到 ctx 取消或 Close 被调用。
func (s *Session) Run(ctx context.Context) {
	defer s.discard()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case it := <-s.queue:
			start := s.opts.Now()
			ok := s.handle(ctx, it)
			s.counters.RecordRequest(s.opts.Now().Sub(start), !ok)
		}
	}
}

func (s *Session) discard() {
	log.Infow("Channel session closed",
		"conversationId", s.conversationID,
		"discardedEnvelopes", len(s.queue),
		"discardedRunes", len(s.buf),
	)
	s.buf = nil
}

// handle 处理一个信封，返回是否成功。
func (s *Session) handle(ctx context.Context, it item) bool {
	if it.parseErr != nil {
		log.Warnw("Invalid channel message", "conversationId", s.conversationID, "error", it.parseErr)
		s.sendError(ctx, invalidFormatMessage)
		return false
	}

	switch it.env.Type {
	case TypeChat:
		return s.handleChat(ctx, it.env)
	case TypeStream:
		s.handleStream(ctx, it.env)
	case TypeStatus:
		active := s.counters.ActiveConnections()
		s.sendLogged(ctx, TypeStatus, Status{
			Type:              TypeStatus,
			Status:            "healthy",
			Timestamp:         s.now(),
			ActiveConnections: &active,
		})
	default:
		err := apperror.UnknownMessageType(it.env.Type)
		log.Warnw("Unknown channel message type", "conversationId", s.conversationID, "type", it.env.Type)
		s.sendError(ctx, err.Reason)
		return false
	}
	return true
}

func (s *Session) handleChat(ctx context.Context, env Inbound) bool {
	conversationID := env.ConversationID
	if conversationID == "" {
		conversationID = s.conversationID
	}

	procCtx := ctx
	if s.opts.HandleTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, s.opts.HandleTimeout)
		defer cancel()
	}

	reply, err := s.chat.ProcessChat(procCtx, conversationID, env.Message, env.Options)
	if err != nil {
		log.Errorw("Failed to process chat message", "conversationId", conversationID, "error", err)
		s.sendError(ctx, clientMessage(err))
		return false
	}

	s.sendLogged(ctx, TypeChatResponse, ChatResponse{
		Type:           TypeChatResponse,
		Content:        reply.Content,
		Timestamp:      reply.Timestamp.UnixMilli(),
		ConversationID: reply.ConversationID,
		MessageID:      reply.MessageID,
		Metrics: ChatMetrics{
			Tokens:         reply.Tokens,
			ProcessingTime: reply.ProcessingTime,
		},
	})
	return true
}

// handleStream 追加到缓冲区，每满 ChunkSize 个字符发出一段；完成时发出剩余部分并清空。
func (s *Session) handleStream(ctx context.Context, env Inbound) {
	s.buf = append(s.buf, []rune(env.Content)...)

	size := s.opts.ChunkSize
	for len(s.buf) >= size {
		chunk := string(s.buf[:size])
		s.buf = append(s.buf[:0], s.buf[size:]...)
		s.sendLogged(ctx, TypeStreamChunk, StreamChunk{Type: TypeStreamChunk, Content: chunk})
	}

	if env.IsComplete {
		rest := string(s.buf)
		s.buf = s.buf[:0]
		s.sendLogged(ctx, TypeStreamChunk, StreamChunk{Type: TypeStreamChunk, Content: rest, IsComplete: true})
	}
}

// BufferedRunes 返回流式缓冲区中尚未发出的字符数。只能在 Run 所在 goroutine 或 Run 返回后调用。
func (s *Session) BufferedRunes() int {
	return len(s.buf)
}

// send 带重试地发送信封，重试耗尽后返回 SEND_FAILED 错误。
func (s *Session) send(ctx context.Context, envelopeType string, v interface{}) error {
	err := retry.Do(ctx, s.opts.Retry, func(attempt int) error {
		if attempt > 0 {
			log.Warnw("Retrying channel send", "type", envelopeType, "attempt", attempt)
		}
		return s.sender.Send(ctx, v)
	})
	if err != nil {
		return apperror.SendFailed(envelopeType, err)
	}
	s.counters.MessageSent()
	return nil
}

// sendLogged 发送信封；重试耗尽时记录错误并尝试发送一次错误信封，连接保持打开。
func (s *Session) sendLogged(ctx context.Context, envelopeType string, v interface{}) {
	err := s.send(ctx, envelopeType, v)
	if err == nil {
		return
	}
	log.Errorw("Channel send failed after retries", "conversationId", s.conversationID, "type", envelopeType, "error", err)
	if ctx.Err() != nil {
		return
	}
	notice := Error{Type: TypeError, Error: "Failed to deliver " + envelopeType + " message", Timestamp: s.now()}
	if err := s.sender.Send(ctx, notice); err != nil {
		log.Warnw("Failed to send error notice", "conversationId", s.conversationID, "error", err)
		return
	}
	s.counters.MessageSent()
}

func (s *Session) sendError(ctx context.Context, message string) {
	err := s.send(ctx, TypeError, Error{Type: TypeError, Error: message, Timestamp: s.now()})
	if err != nil {
		log.Errorw("Channel send failed after retries", "conversationId", s.conversationID, "type", TypeError, "error", err)
	}
}

func (s *Session) now() int64 {
	return s.opts.Now().UnixMilli()
}

// clientMessage 返回可以发给客户端的错误描述，存储错误不暴露细节。
func clientMessage(err error) string {
	appErr, ok := apperror.As(err)
	if !ok {
		return "Failed to process message"
	}
	switch appErr.Code {
	case apperror.CodeValidation, apperror.CodeNotFound:
		return appErr.Reason
	default:
		return "Failed to process message"
	}
}
