// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation 代表一个会话线程，按时间顺序聚合多条 Message。
type Conversation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Title         string    `gorm:"size:255" json:"title"`
	UserID        string    `gorm:"size:64;index" json:"userId"`
	ModelConfigID *string   `gorm:"size:36" json:"modelConfigId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `gorm:"index" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 是会话中的单条消息，创建后内容不可变。
// Seq 是内部自增序号，用于同一时间戳下的稳定排序，不对外暴露。
type Message struct {
	Seq            uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID             string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	ConversationID string    `gorm:"index;size:36;not null" json:"conversationId"`
	Role           string    `gorm:"size:16;not null" json:"role"` // "user" 或 "assistant"
	Content        string    `gorm:"type:text;not null" json:"content"`
	Tokens         int       `json:"tokens"`
	CreatedAt      time.Time `json:"createdAt"`
	Feedback       *int      `json:"feedback,omitempty"`
	ProcessingTime *int64    `json:"processingTime,omitempty"` // 毫秒
}

func (Message) TableName() string {
	return "messages"
}

// EstimateTokens 以字符数除以 4 粗略估算 token 数，并非精确分词。
func EstimateTokens(content string) int {
	return len([]rune(content)) / 4
}
