package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"pai-dashboard-go/internal/model"
)

const currentSettingsKey = "dashboard:model_settings:current"

// 缓存为哈希 {seq, data}。只有 seq 更大的配置才会覆盖已缓存的配置，
// 晚到的旧读结果不会盖掉刚保存的新配置。
var setIfNewerScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "seq")
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "seq", ARGV[1], "data", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// SettingsCache 缓存当前生效的模型配置。未命中时 Get 返回 (nil, nil)。
// Set 只在 cfg.Seq 大于已缓存配置时生效。
type SettingsCache interface {
	Get(ctx context.Context) (*model.ModelConfig, error)
	Set(ctx context.Context, cfg *model.ModelConfig) error
	Invalidate(ctx context.Context) error
}

type redisSettingsCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewSettingsCache 创建基于 Redis 的设置缓存；redisClient 为 nil 时返回不缓存的实现。
func NewSettingsCache(redisClient *redis.Client, ttl time.Duration) SettingsCache {
	if redisClient == nil {
		return nopSettingsCache{}
	}
	return &redisSettingsCache{redisClient: redisClient, ttl: ttl}
}

func (c *redisSettingsCache) Get(ctx context.Context) (*model.ModelConfig, error) {
	values, err := c.redisClient.HMGet(ctx, currentSettingsKey, "seq", "data").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cached settings: %w", err)
	}
	seqRaw, ok1 := values[0].(string)
	data, ok2 := values[1].(string)
	if !ok1 || !ok2 {
		return nil, nil
	}
	seq, err := strconv.ParseUint(seqRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cached settings seq %q: %w", seqRaw, err)
	}
	var cfg model.ModelConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached settings: %w", err)
	}
	cfg.Seq = seq
	return &cfg, nil
}

func (c *redisSettingsCache) Set(ctx context.Context, cfg *model.ModelConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	ttl := c.ttl
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	err = setIfNewerScript.Run(ctx, c.redisClient, []string{currentSettingsKey}, cfg.Seq, data, ttl.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to cache settings: %w", err)
	}
	return nil
}

func (c *redisSettingsCache) Invalidate(ctx context.Context) error {
	if err := c.redisClient.Del(ctx, currentSettingsKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached settings: %w", err)
	}
	return nil
}

type nopSettingsCache struct{}

func (nopSettingsCache) Get(context.Context) (*model.ModelConfig, error) { return nil, nil }
func (nopSettingsCache) Set(context.Context, *model.ModelConfig) error   { return nil }
func (nopSettingsCache) Invalidate(context.Context) error                { return nil }
