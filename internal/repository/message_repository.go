package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/pkg/database"
)

// MessageRepository 定义了消息的持久化操作。
type MessageRepository interface {
	// Append 校验会话存在后插入消息，并在同一事务中刷新会话的更新时间。
	Append(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	SetFeedback(ctx context.Context, messageID string, feedback int) error
	Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error)
}

type messageRepository struct {
	store *database.Store
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(store *database.Store) MessageRepository {
	return &messageRepository{store: store}
}

func (r *messageRepository) Append(ctx context.Context, msg *model.Message) error {
	return r.store.WithTx(ctx, "append message", func(tx *gorm.DB) error {
		var conv model.Conversation
		err := lockConversation(tx, msg.ConversationID).Take(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("conversation", msg.ConversationID)
		}
		if err != nil {
			return err
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

// lockConversation 在事务内以排他锁读取会话行，并发的删除只能在本事务提交后进行。
// SQLite 驱动忽略该子句，单连接本身已串行化。
func lockConversation(tx *gorm.DB, id string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Select("id").
		Where("id = ?", id)
}

// ListByConversation 按创建时间升序返回会话内的全部消息。
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	err := r.store.Run(ctx, "list messages", func(db *gorm.DB) error {
		return db.Where("conversation_id = ?", conversationID).
			Order("created_at ASC").Order("seq ASC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SetFeedback 更新消息的反馈分数，这是消息唯一可变的字段。
func (r *messageRepository) SetFeedback(ctx context.Context, messageID string, feedback int) error {
	return r.store.Run(ctx, "set message feedback", func(db *gorm.DB) error {
		var msg model.Message
		err := db.Select("seq").Where("id = ?", messageID).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("message", messageID)
		}
		if err != nil {
			return err
		}
		return db.Model(&model.Message{}).Where("seq = ?", msg.Seq).Update("feedback", feedback).Error
	})
}

// Search 使用 LIKE 做子串匹配，是未配置 Elasticsearch 时的回退实现。
func (r *messageRepository) Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	var messages []model.Message
	pattern := "%" + escapeLike(query) + "%"
	err := r.store.Run(ctx, "search messages", func(db *gorm.DB) error {
		return db.Where("content LIKE ? ESCAPE '!'", pattern).
			Order("created_at DESC").Order("seq DESC").
			Limit(limit).
			Find(&messages).Error
	})
	if err != nil {
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(messages))
	for _, m := range messages {
		hits = append(hits, model.SearchHit{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
			Score:          1,
		})
	}
	return hits, nil
}

// 使用 ! 作为转义符，SQLite 与 MySQL 对反斜杠字面量的解析不同。
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
