package model

import "time"

// MessageDocument 定义了存储在 Elasticsearch 中的消息文档结构。
type MessageDocument struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessageDocument 从消息构建索引文档。
func NewMessageDocument(m *Message) MessageDocument {
	return MessageDocument{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

// SearchHit 定义了返回给前端的消息搜索结果结构。
type SearchHit struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	Score          float64   `json:"score"`
}
