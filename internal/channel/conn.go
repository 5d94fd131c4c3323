package channel

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"pai-dashboard-go/pkg/log"
)

// Sender 发送一个出站信封，每次调用只尝试一次。
type Sender interface {
	Send(ctx context.Context, v interface{}) error
}

// ConnSender 将信封以 JSON 文本帧写入 WebSocket。
// 只能由一个 goroutine 调用 Send。
type ConnSender struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewConnSender 创建一个 ConnSender。
func NewConnSender(conn *websocket.Conn, writeTimeout time.Duration) *ConnSender {
	return &ConnSender{conn: conn, writeTimeout: writeTimeout}
}

func (s *ConnSender) Send(ctx context.Context, v interface{}) error {
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// KeepAlive 按 interval 发送 ping 控制帧，直到 ctx 取消或发送失败。
// WriteControl 可以与 ConnSender 的写操作并发调用。
func KeepAlive(ctx context.Context, conn *websocket.Conn, interval, writeTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warnf("发送 WebSocket ping 失败: %v", err)
				return
			}
		}
	}
}
