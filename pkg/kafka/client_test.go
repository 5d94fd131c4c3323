package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"pai-dashboard-go/pkg/retry"
	"pai-dashboard-go/pkg/tasks"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeProcessor struct {
	mu       sync.Mutex
	failures int
	calls    int
	done     []string
}

func (p *fakeProcessor) Process(_ context.Context, task tasks.PerformanceMetricTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("db down")
	}
	p.done = append(p.done, task.MessageID)
	return nil
}

func encodeTask(t *testing.T, task tasks.PerformanceMetricTask) kafka.Message {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		encodeTask(t, tasks.PerformanceMetricTask{MessageID: "m1"}),
		{Value: []byte("garbage")},
		encodeTask(t, tasks.PerformanceMetricTask{MessageID: "m2"}),
	}}
	proc := &fakeProcessor{failures: 1}
	c := &Consumer{reader: reader, processor: proc, policy: retry.Policy{MaxRetries: 2, Delay: time.Millisecond}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	require.Equal(t, []string{"m1", "m2"}, proc.done)
	require.Equal(t, 3, proc.calls)
	require.True(t, reader.closed)
}

func TestConsumer_DropsAfterRetriesExhausted(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{encodeTask(t, tasks.PerformanceMetricTask{MessageID: "m1"})}}
	proc := &fakeProcessor{failures: 10}
	c := &Consumer{reader: reader, processor: proc, policy: retry.Policy{MaxRetries: 2, Delay: time.Millisecond}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	require.Equal(t, 3, proc.calls)
	require.Empty(t, proc.done)
}
