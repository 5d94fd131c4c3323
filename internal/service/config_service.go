package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/internal/repository"
	"pai-dashboard-go/pkg/log"
)

// SettingsInput 是保存模型设置的请求。数值字段使用指针以区分缺失与零值，
// MaxTokens 使用浮点以便识别非整数输入。
type SettingsInput struct {
	Name             string   `json:"name"`
	Temperature      *float64 `json:"temperature"`
	TopP             *float64 `json:"topP"`
	MaxTokens        *float64 `json:"maxTokens"`
	FrequencyPenalty *float64 `json:"frequencyPenalty"`
	PresencePenalty  *float64 `json:"presencePenalty"`
	SystemPrompt     *string  `json:"systemPrompt"`
	TTSEnabled       *bool    `json:"ttsEnabled"`
	STTEnabled       *bool    `json:"sttEnabled"`
}

// ConfigService 定义了模型设置相关的业务逻辑接口。
type ConfigService interface {
	GetSettings(ctx context.Context) (*model.ModelConfig, error)
	SaveSettings(ctx context.Context, in SettingsInput) (string, error)
	ListPresets() []model.ModelPreset
	GetConfig(ctx context.Context, id string) (*model.ModelConfig, error)
}

type configService struct {
	repo  repository.ModelConfigRepository
	cache repository.SettingsCache
	now   func() time.Time
}

// NewConfigService 创建一个新的 ConfigService 实例。
func NewConfigService(repo repository.ModelConfigRepository, cache repository.SettingsCache) ConfigService {
	return &configService{
		repo:  repo,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetSettings 返回最近保存的配置；尚未保存过时返回默认配置。
func (s *configService) GetSettings(ctx context.Context) (*model.ModelConfig, error) {
	if cached, err := s.cache.Get(ctx); err != nil {
		log.Warnw("Failed to read settings cache", "error", err)
	} else if cached != nil {
		return cached, nil
	}

	latest, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		def := model.DefaultModelConfig()
		return &def, nil
	}
	if err := s.cache.Set(ctx, latest); err != nil {
		log.Warnw("Failed to populate settings cache", "error", err)
	}
	return latest, nil
}

// SaveSettings 校验后追加一行新配置，返回其 ID。
func (s *configService) SaveSettings(ctx context.Context, in SettingsInput) (string, error) {
	if err := validateSettings(in); err != nil {
		return "", err
	}

	cfg := &model.ModelConfig{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Temperature:      *in.Temperature,
		TopP:             *in.TopP,
		MaxTokens:        int(*in.MaxTokens),
		FrequencyPenalty: *in.FrequencyPenalty,
		PresencePenalty:  *in.PresencePenalty,
		SystemPrompt:     in.SystemPrompt,
		TTSEnabled:       in.TTSEnabled,
		STTEnabled:       in.STTEnabled,
		CreatedAt:        s.now(),
	}
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return "", err
	}
	// 写穿缓存。写入失败时删除缓存，下次读取回源
	if err := s.cache.Set(ctx, cfg); err != nil {
		log.Warnw("Failed to cache saved settings", "error", err)
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warnw("Failed to invalidate settings cache", "error", err)
		}
	}
	log.Infow("Model settings saved", "configId", cfg.ID)
	return cfg.ID, nil
}

func (s *configService) ListPresets() []model.ModelPreset {
	return model.ModelPresets()
}

func (s *configService) GetConfig(ctx context.Context, id string) (*model.ModelConfig, error) {
	return s.repo.FindByID(ctx, id)
}

// validateSettings 按固定顺序检查，返回第一个不满足的约束。
func validateSettings(in SettingsInput) error {
	if err := checkRange("temperature", in.Temperature, 0, 2); err != nil {
		return err
	}
	if err := checkRange("topP", in.TopP, 0, 1); err != nil {
		return err
	}
	if in.MaxTokens == nil {
		return apperror.Validation("maxTokens", "maxTokens is required")
	}
	if m := *in.MaxTokens; m < 1 || m != math.Trunc(m) || m > math.MaxInt32 {
		return apperror.Validation("maxTokens", "maxTokens must be a positive integer")
	}
	if err := checkRange("frequencyPenalty", in.FrequencyPenalty, -2, 2); err != nil {
		return err
	}
	return checkRange("presencePenalty", in.PresencePenalty, -2, 2)
}

func checkRange(field string, v *float64, min, max float64) error {
	if v == nil {
		return apperror.Validation(field, field+" is required")
	}
	if math.IsNaN(*v) || *v < min || *v > max {
		return apperror.Validation(field, fmt.Sprintf("%s must be between %g and %g", field, min, max))
	}
	return nil
}
