package service

import (
	"context"

	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/internal/repository"
	"pai-dashboard-go/pkg/tasks"
)

// MetricRecorder 记录助手回复的性能指标。
type MetricRecorder interface {
	Record(ctx context.Context, task tasks.PerformanceMetricTask) error
}

// MetricProducer 将指标任务发送到消息队列，由 pkg/kafka.Producer 实现。
type MetricProducer interface {
	ProduceMetricTask(ctx context.Context, task tasks.PerformanceMetricTask) error
}

// NewMetricRecorder 返回记录器：producer 非 nil 时经 Kafka 异步落库，否则直接写库。
func NewMetricRecorder(repo repository.MetricRepository, producer MetricProducer) MetricRecorder {
	if producer != nil {
		return &queuedMetricRecorder{producer: producer}
	}
	return &MetricTaskProcessor{repo: repo}
}

type queuedMetricRecorder struct {
	producer MetricProducer
}

func (r *queuedMetricRecorder) Record(ctx context.Context, task tasks.PerformanceMetricTask) error {
	return r.producer.ProduceMetricTask(ctx, task)
}

// MetricTaskProcessor 将指标任务写入数据库。
// 它既是直接写库的 MetricRecorder，也是 Kafka 消费者的 TaskProcessor。
type MetricTaskProcessor struct {
	repo repository.MetricRepository
}

// NewMetricTaskProcessor 创建一个 MetricTaskProcessor。
func NewMetricTaskProcessor(repo repository.MetricRepository) *MetricTaskProcessor {
	return &MetricTaskProcessor{repo: repo}
}

func (p *MetricTaskProcessor) Record(ctx context.Context, task tasks.PerformanceMetricTask) error {
	return p.Process(ctx, task)
}

// Process 持久化一条指标。
func (p *MetricTaskProcessor) Process(ctx context.Context, task tasks.PerformanceMetricTask) error {
	return p.repo.Create(ctx, &model.PerformanceMetric{
		ID:           task.MetricID,
		MessageID:    task.MessageID,
		ResponseTime: task.ResponseTime,
		TokenCount:   task.TokenCount,
		MemoryUsage:  task.MemoryUsage,
		Timestamp:    task.Timestamp,
	})
}
