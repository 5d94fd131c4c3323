package model

import "time"

// PerformanceMetric 记录一次助手回复的处理开销，只写不读。
type PerformanceMetric struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	MessageID    string    `gorm:"index;size:36" json:"messageId"`
	ResponseTime int64     `json:"responseTime"` // 毫秒
	TokenCount   int       `json:"tokenCount"`
	MemoryUsage  uint64    `json:"memoryUsage"` // 字节
	Timestamp    time.Time `json:"timestamp"`
}

func (PerformanceMetric) TableName() string {
	return "performance_metrics"
}
