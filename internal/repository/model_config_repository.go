package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/pkg/database"
)

// ModelConfigRepository 定义了模型配置（只追加）的持久化操作。
type ModelConfigRepository interface {
	Create(ctx context.Context, cfg *model.ModelConfig) error
	// Latest 返回最近插入的一行；表为空时返回 (nil, nil)。
	Latest(ctx context.Context) (*model.ModelConfig, error)
	FindByID(ctx context.Context, id string) (*model.ModelConfig, error)
}

type modelConfigRepository struct {
	store *database.Store
}

// NewModelConfigRepository 创建一个新的 ModelConfigRepository 实例。
func NewModelConfigRepository(store *database.Store) ModelConfigRepository {
	return &modelConfigRepository{store: store}
}

func (r *modelConfigRepository) Create(ctx context.Context, cfg *model.ModelConfig) error {
	return r.store.Run(ctx, "create model config", func(db *gorm.DB) error {
		return db.Create(cfg).Error
	})
}

// Latest 以自增序号而不是 created_at 判定最新，避免时钟精度导致的并列。
func (r *modelConfigRepository) Latest(ctx context.Context) (*model.ModelConfig, error) {
	var cfg model.ModelConfig
	found := true
	err := r.store.Run(ctx, "load latest model config", func(db *gorm.DB) error {
		err := db.Order("seq DESC").First(&cfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (r *modelConfigRepository) FindByID(ctx context.Context, id string) (*model.ModelConfig, error) {
	var cfg model.ModelConfig
	err := r.store.Run(ctx, "find model config", func(db *gorm.DB) error {
		err := db.Where("id = ?", id).First(&cfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("model config", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
