// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/pkg/database"
)

// ConversationRepository 定义了会话的持久化操作。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}

type conversationRepository struct {
	store *database.Store
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(store *database.Store) ConversationRepository {
	return &conversationRepository{store: store}
}

// Create 插入一条新会话。
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.store.Run(ctx, "create conversation", func(db *gorm.DB) error {
		return db.Create(conv).Error
	})
}

// FindByID 根据 ID 查找会话，不存在时返回 NOT_FOUND 错误。
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.store.Run(ctx, "find conversation", func(db *gorm.DB) error {
		err := db.Where("id = ?", id).First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("conversation", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// List 按最近更新时间倒序返回全部会话。
func (r *conversationRepository) List(ctx context.Context) ([]model.Conversation, error) {
	convs := make([]model.Conversation, 0)
	err := r.store.Run(ctx, "list conversations", func(db *gorm.DB) error {
		return db.Order("updated_at DESC").Order("created_at DESC").Find(&convs).Error
	})
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// UpdateTitle 修改会话标题并刷新更新时间。
func (r *conversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	return r.store.Run(ctx, "update conversation title", func(db *gorm.DB) error {
		res := db.Model(&model.Conversation{}).Where("id = ?", id).Update("title", title)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("conversation", id)
		}
		return nil
	})
}

// Delete 在同一事务中删除会话的性能指标、消息以及会话本身。
// 外键并未由数据库强制，级联由这里保证。删除不存在的会话视为成功。
func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	return r.store.Transaction(ctx, []database.Statement{
		{
			SQL:  "DELETE FROM performance_metrics WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)",
			Args: []interface{}{id},
		},
		{SQL: "DELETE FROM messages WHERE conversation_id = ?", Args: []interface{}{id}},
		{SQL: "DELETE FROM conversations WHERE id = ?", Args: []interface{}{id}},
	})
}
