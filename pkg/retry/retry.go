// Package retry 提供固定间隔的有界重试。
package retry

import (
	"context"
	"time"
)

// Policy 描述重试策略：首次尝试之后最多再重试 MaxRetries 次，每次间隔 Delay。
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Do 执行 fn，失败时按策略重试，返回最后一次的错误。
// ctx 取消时立即返回 ctx.Err()。
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
