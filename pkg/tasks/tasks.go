// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// PerformanceMetricTask represents one assistant reply's processing cost,
// produced by the chat path and persisted by the consumer.
type PerformanceMetricTask struct {
	MetricID     string    `json:"metric_id"`
	MessageID    string    `json:"message_id"`
	ResponseTime int64     `json:"response_time_ms"`
	TokenCount   int       `json:"token_count"`
	MemoryUsage  uint64    `json:"memory_usage"`
	Timestamp    time.Time `json:"timestamp"`
}
