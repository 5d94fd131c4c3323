package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder 接收每个 HTTP 请求的延迟与结果，由 monitor.Reporter 实现。
type RequestRecorder interface {
	RecordRequest(latency time.Duration, isError bool)
}

// RequestMetrics 记录请求延迟；状态码 >= 500 计为错误。WebSocket 连接不计入延迟窗口。
func RequestMetrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		recorder.RecordRequest(time.Since(start), c.Writer.Status() >= http.StatusInternalServerError)
	}
}
