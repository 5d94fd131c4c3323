package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"pai-dashboard-go/internal/config"
	"pai-dashboard-go/pkg/log"
)

// NewRedis 创建 Redis 客户端并测试连接。Addr 为空时返回 nil，调用方应退化为不使用缓存。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		log.Info("Redis 未配置，跳过设置缓存")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
