package repository

import (
	"context"

	"gorm.io/gorm"

	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/pkg/database"
)

// MetricRepository 定义了性能指标的写入操作。指标不会被 API 读回。
type MetricRepository interface {
	Create(ctx context.Context, m *model.PerformanceMetric) error
}

type metricRepository struct {
	store *database.Store
}

// NewMetricRepository 创建一个新的 MetricRepository 实例。
func NewMetricRepository(store *database.Store) MetricRepository {
	return &metricRepository{store: store}
}

func (r *metricRepository) Create(ctx context.Context, m *model.PerformanceMetric) error {
	return r.store.Run(ctx, "record performance metric", func(db *gorm.DB) error {
		return db.Create(m).Error
	})
}
