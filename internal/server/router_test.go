package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pai-dashboard-go/internal/config"
	"pai-dashboard-go/internal/handler"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/internal/monitor"
	"pai-dashboard-go/internal/repository"
	"pai-dashboard-go/internal/service"
	"pai-dashboard-go/pkg/database"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now 每次调用推进一秒，保证连续两次读取的时间戳不同。
func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type busySampler struct {
	mu    sync.Mutex
	calls int
}

func (s *busySampler) Sample(context.Context) (monitor.HostSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	n := float64(s.calls)
	return monitor.HostSample{
		Cores: []monitor.CoreTimes{
			{Idle: 60 * n, Total: 100 * n},
			{Idle: 20 * n, Total: 100 * n},
		},
		Memory: monitor.MemoryStats{Total: 8 << 30, Used: 2 << 30, Free: 6 << 30},
		Uptime: time.Hour,
	}, nil
}

type testEnv struct {
	router   *gin.Engine
	store    *database.Store
	reporter *monitor.Reporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.Open(database.Options{Driver: "sqlite", DSN: ":memory:", OpTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(&model.Conversation{}, &model.Message{}, &model.ModelConfig{}, &model.PerformanceMetric{}))

	conversationService := service.NewConversationService(
		repository.NewConversationRepository(store),
		repository.NewMessageRepository(store),
		nil, nil,
	)
	configService := service.NewConfigService(repository.NewModelConfigRepository(store), repository.NewSettingsCache(nil, time.Minute))
	metricRecorder := service.NewMetricRecorder(repository.NewMetricRepository(store), nil)
	chatService := service.NewChatService(conversationService, service.EchoResponder{}, metricRecorder)

	clock := &steppingClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	reporter := monitor.New(&busySampler{}, monitor.Options{SampleInterval: time.Hour, Now: clock.Now})
	reporter.Start(context.Background())
	t.Cleanup(reporter.Close)

	channelCfg := config.ChannelConfig{
		ChunkSize:     1024,
		MaxRetries:    3,
		RetryDelay:    10 * time.Millisecond,
		WriteTimeout:  time.Second,
		HandleTimeout: 5 * time.Second,
		QueueSize:     16,
	}

	router := NewRouter(Handlers{
		Conversation: handler.NewConversationHandler(conversationService),
		Search:       handler.NewSearchHandler(conversationService),
		Config:       handler.NewConfigHandler(configService),
		Metrics:      handler.NewMetricsHandler(reporter),
		Model:        handler.NewModelHandler(),
		Channel:      handler.NewChannelHandler(chatService, reporter, channelCfg),
	}, reporter)

	return &testEnv{router: router, store: store, reporter: reporter}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func validSettings(temperature float64) map[string]interface{} {
	return map[string]interface{}{
		"name":             "mine",
		"temperature":      temperature,
		"topP":             0.9,
		"maxTokens":        512,
		"frequencyPenalty": 0,
		"presencePenalty":  0,
	}
}

func TestModelSettings(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/config/model-settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	settings := body["settings"].(map[string]interface{})
	assert.Equal(t, "default", settings["name"])

	w, body = env.do(t, http.MethodPost, "/api/config/model-settings", validSettings(2.5))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "temperature", body["field"])
	assert.Contains(t, body["error"], "temperature")

	w, body = env.do(t, http.MethodPost, "/api/config/model-settings", validSettings(2.0))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	configID, _ := body["configId"].(string)
	require.NotEmpty(t, configID)

	w, body = env.do(t, http.MethodGet, "/api/config/model-settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	settings = body["settings"].(map[string]interface{})
	assert.Equal(t, configID, settings["id"])
	assert.EqualValues(t, 2.0, settings["temperature"])
	assert.EqualValues(t, 512, settings["maxTokens"])

	w, body = env.do(t, http.MethodGet, "/api/config/model-configs/"+configID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mine", body["config"].(map[string]interface{})["name"])

	w, _ = env.do(t, http.MethodGet, "/api/config/model-configs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModelSettingsRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/config/model-settings", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"body"`)
}

func TestModelPresets(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/config/model-presets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	presets := body["presets"].([]interface{})
	require.Len(t, presets, 3)
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.(map[string]interface{})["name"].(string))
	}
	assert.Equal(t, []string{"creative", "balanced", "precise"}, names)
}

func TestModelEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, body["models"])

	w, body = env.do(t, http.MethodPost, "/api/models/llama-7b/load", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "loading", body["status"])
	assert.Equal(t, "llama-7b", body["modelId"])

	w, body = env.do(t, http.MethodPost, "/api/models/llama-7b/unload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unloaded", body["status"])
	assert.Equal(t, "llama-7b", body["modelId"])
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/chat/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	convID := body["conversationId"].(string)
	require.NotEmpty(t, convID)

	w, body = env.do(t, http.MethodPost, "/api/chat/conversations/"+convID+"/messages", map[string]string{"role": "user", "content": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, body["messageId"])

	w, _ = env.do(t, http.MethodPost, "/api/chat/conversations/"+convID+"/messages", map[string]string{"role": "assistant", "content": "hi there"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/chat/conversations/"+convID+"/messages", map[string]string{"role": "system", "content": "nope"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "role", body["field"])

	w, body = env.do(t, http.MethodGet, "/api/chat/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].(map[string]interface{})["content"])
	assert.Equal(t, "hi there", messages[1].(map[string]interface{})["content"])

	w, body = env.do(t, http.MethodGet, "/api/chat/search?q=there", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["results"], 1)

	w, _ = env.do(t, http.MethodGet, "/api/chat/search?q=there&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/chat/conversations/"+convID+"/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/chat/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/chat/conversations/"+convID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/chat/conversations/"+convID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/chat/conversations/"+convID+"/messages", map[string]string{"role": "user", "content": "late"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w, first := env.do(t, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cpu := first["cpu"].(float64)
	assert.GreaterOrEqual(t, cpu, 0.0)
	assert.LessOrEqual(t, cpu, 100.0)
	assert.InDelta(t, 60.0, cpu, 1e-9)

	_, second := env.do(t, http.MethodGet, "/api/metrics", nil)
	assert.NotEqual(t, first["timestamp"], second["timestamp"])

	w, snapshot := env.do(t, http.MethodGet, "/api/monitoring/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	application := snapshot["application"].(map[string]interface{})
	// 前面两次 /api/metrics 已被请求中间件计入
	assert.GreaterOrEqual(t, application["requests"].(float64), 2.0)

	w, resources := env.do(t, http.MethodGet, "/api/monitoring/resources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	memory := resources["memory"].(map[string]interface{})
	assert.InDelta(t, 25.0, memory["percentage"].(float64), 1e-9)

	w, status := env.do(t, http.MethodGet, "/api/monitoring/model-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", status["status"])
	assert.NotZero(t, status["lastRequest"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/conversations", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out map[string]interface{}
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestChannelRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	greeting := readEnvelope(t, conn)
	assert.Equal(t, "status", greeting["type"])
	assert.Equal(t, "connected", greeting["status"])
	convID := greeting["conversationId"].(string)
	require.NotEmpty(t, convID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "message": "ping"}))
	reply := readEnvelope(t, conn)
	assert.Equal(t, "chat-response", reply["type"])
	assert.Equal(t, "Processed: ping", reply["content"])
	assert.Equal(t, convID, reply["conversationId"])
	assert.NotEmpty(t, reply["messageId"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	errEnvelope := readEnvelope(t, conn)
	assert.Equal(t, "error", errEnvelope["type"])

	// 未知类型之后连接仍然可用
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "status"}))
	status := readEnvelope(t, conn)
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, "healthy", status["status"])
	assert.EqualValues(t, 1, status["activeConnections"])

	// 通道中的对话已持久化
	w, body := env.do(t, http.MethodGet, "/api/chat/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 2)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return env.reporter.ActiveConnections() == 0 }, 5*time.Second, 10*time.Millisecond)
}
