// Package channel 实现实时通道：每个 WebSocket 连接对应一个 Session，
// 入站信封按到达顺序逐个处理，出站信封带重试发送。
package channel

// 入站与出站信封类型
const (
	TypeChat         = "chat"
	TypeStream       = "stream"
	TypeStatus       = "status"
	TypeChatResponse = "chat-response"
	TypeStreamChunk  = "stream-chunk"
	TypeError        = "error"
)

const invalidFormatMessage = "Invalid message format"

// Inbound 是客户端发来的信封，按 Type 使用不同字段。
type Inbound struct {
	Type           string                 `json:"type"`
	Message        string                 `json:"message,omitempty"`
	Options        map[string]interface{} `json:"options,omitempty"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Content        string                 `json:"content,omitempty"`
	IsComplete     bool                   `json:"isComplete,omitempty"`
}

// ChatMetrics 附带在 chat-response 中。
type ChatMetrics struct {
	Tokens         int   `json:"tokens"`
	ProcessingTime int64 `json:"processingTime"`
}

// ChatResponse 是对 chat 信封的回复。
type ChatResponse struct {
	Type           string      `json:"type"`
	Content        string      `json:"content"`
	Timestamp      int64       `json:"timestamp"`
	ConversationID string      `json:"conversationId"`
	MessageID      string      `json:"messageId"`
	Metrics        ChatMetrics `json:"metrics"`
}

// StreamChunk 是流式缓冲区切出的一段。
type StreamChunk struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	IsComplete bool   `json:"isComplete"`
}

// Status 是状态信封。连接建立时携带 conversationId，响应 status 请求时携带连接数。
type Status struct {
	Type              string `json:"type"`
	Status            string `json:"status"`
	Timestamp         int64  `json:"timestamp"`
	ConversationID    string `json:"conversationId,omitempty"`
	ActiveConnections *int64 `json:"activeConnections,omitempty"`
}

// Error 是错误信封。
type Error struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}
