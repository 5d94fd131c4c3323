package model

import "time"

// DefaultSystemPrompt 是未保存任何配置时使用的思维链提示词。
const DefaultSystemPrompt = `Before providing solutions:
1. Analyze the problem thoroughly
2. Break down into clear steps
3. Consider edge cases
4. Plan implementation approach
5. Validate solution strategy`

// ModelConfig 是一组持久化的生成参数，只追加不修改。
// "当前设置" 定义为 Seq 最大的一行。
type ModelConfig struct {
	Seq              uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID               string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Name             string    `gorm:"size:128" json:"name"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"topP"`
	MaxTokens        int       `json:"maxTokens"`
	FrequencyPenalty float64   `json:"frequencyPenalty"`
	PresencePenalty  float64   `json:"presencePenalty"`
	SystemPrompt     *string   `gorm:"type:text" json:"systemPrompt,omitempty"`
	TTSEnabled       *bool     `json:"ttsEnabled,omitempty"`
	STTEnabled       *bool     `json:"sttEnabled,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (ModelConfig) TableName() string {
	return "model_configs"
}

// DefaultModelConfig 返回没有任何已保存配置时对外展示的默认设置。
func DefaultModelConfig() ModelConfig {
	prompt := DefaultSystemPrompt
	off := false
	return ModelConfig{
		Name:             "default",
		Temperature:      0.7,
		TopP:             1,
		MaxTokens:        2048,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		SystemPrompt:     &prompt,
		TTSEnabled:       &off,
		STTEnabled:       &off,
	}
}

// ModelPreset 是一组命名的生成参数，仅存在于内存中。
type ModelPreset struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	MaxTokens        int     `json:"maxTokens"`
	FrequencyPenalty float64 `json:"frequencyPenalty"`
	PresencePenalty  float64 `json:"presencePenalty"`
}

// ModelPresets 返回固定的三个预设。每次返回新切片，调用方可以随意修改。
func ModelPresets() []ModelPreset {
	return []ModelPreset{
		{
			Name:             "creative",
			Description:      "More varied and imaginative responses",
			Temperature:      1.2,
			TopP:             0.95,
			MaxTokens:        2048,
			FrequencyPenalty: 0.5,
			PresencePenalty:  0.6,
		},
		{
			Name:             "balanced",
			Description:      "Default trade-off between creativity and focus",
			Temperature:      0.7,
			TopP:             1,
			MaxTokens:        2048,
			FrequencyPenalty: 0,
			PresencePenalty:  0,
		},
		{
			Name:             "precise",
			Description:      "Deterministic, focused responses",
			Temperature:      0.2,
			TopP:             0.5,
			MaxTokens:        1024,
			FrequencyPenalty: 0,
			PresencePenalty:  0,
		},
	}
}
