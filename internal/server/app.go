package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"pai-dashboard-go/internal/config"
	"pai-dashboard-go/internal/handler"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/internal/monitor"
	"pai-dashboard-go/internal/repository"
	"pai-dashboard-go/internal/service"
	"pai-dashboard-go/pkg/database"
	"pai-dashboard-go/pkg/es"
	"pai-dashboard-go/pkg/kafka"
	"pai-dashboard-go/pkg/log"
	"pai-dashboard-go/pkg/storage"
)

// App 持有进程内的全部长生命周期组件。
type App struct {
	cfg      *config.Config
	store    *database.Store
	rdb      *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	reporter *monitor.Reporter
	srv      *http.Server
}

// New 按配置打开存储与可选后端并完成依赖注入。任一步失败时已打开的资源会被关闭。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	var err error

	// 1. 初始化数据库
	a.store, err = database.Open(database.Options{
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
		OpTimeout: cfg.Database.OpTimeout,
	})
	if err != nil {
		return err
	}
	if err = a.store.Migrate(&model.Conversation{}, &model.Message{}, &model.ModelConfig{}, &model.PerformanceMetric{}); err != nil {
		return err
	}

	// 2. 初始化可选后端：地址为空时跳过
	a.rdb, err = database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	var index service.MessageIndex
	if cfg.Elasticsearch.Addresses != "" {
		esClient, esErr := es.NewClient(ctx, cfg.Elasticsearch)
		if esErr != nil {
			return fmt.Errorf("es 初始化失败: %w", esErr)
		}
		index = esClient
	} else {
		log.Info("未配置 Elasticsearch，消息搜索使用数据库")
	}

	var transcripts service.TranscriptStore
	if cfg.MinIO.Endpoint != "" {
		objectStore, minioErr := storage.NewObjectStore(ctx, cfg.MinIO)
		if minioErr != nil {
			return minioErr
		}
		transcripts = objectStore
	} else {
		log.Info("未配置 MinIO，会话导出不可用")
	}

	// 3. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(a.store)
	messageRepo := repository.NewMessageRepository(a.store)
	modelConfigRepo := repository.NewModelConfigRepository(a.store)
	metricRepo := repository.NewMetricRepository(a.store)
	settingsCache := repository.NewSettingsCache(a.rdb, cfg.Redis.TTL)

	// 4. 性能指标：配置了 Kafka 时经队列异步落库
	var producer service.MetricProducer
	if cfg.Kafka.Brokers != "" {
		a.producer = kafka.NewProducer(cfg.Kafka)
		a.consumer = kafka.NewConsumer(cfg.Kafka, service.NewMetricTaskProcessor(metricRepo))
		producer = a.producer
	}

	// 5. 初始化 Service (依赖注入)
	conversationService := service.NewConversationService(conversationRepo, messageRepo, index, transcripts)
	configService := service.NewConfigService(modelConfigRepo, settingsCache)
	metricRecorder := service.NewMetricRecorder(metricRepo, producer)
	chatService := service.NewChatService(conversationService, service.EchoResponder{Delay: cfg.Channel.ReplyDelay}, metricRecorder)

	a.reporter = monitor.New(monitor.HostSampler{}, monitor.Options{
		SampleInterval:  cfg.Monitor.SampleInterval,
		CleanupInterval: cfg.Monitor.CleanupInterval,
		Window:          cfg.Monitor.Window,
	})

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	router := NewRouter(Handlers{
		Conversation: handler.NewConversationHandler(conversationService),
		Search:       handler.NewSearchHandler(conversationService),
		Config:       handler.NewConfigHandler(configService),
		Metrics:      handler.NewMetricsHandler(a.reporter),
		Model:        handler.NewModelHandler(),
		Channel:      handler.NewChannelHandler(chatService, a.reporter, cfg.Channel),
	}, a.reporter)

	a.srv = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run 启动 HTTP 服务、指标采集与 Kafka 消费者，直到 ctx 取消后优雅停机。
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	// 请求上下文继承 gctx，停机时 WebSocket 会话随之结束
	a.srv.BaseContext = func(net.Listener) context.Context { return gctx }

	a.reporter.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		a.reporter.Close()
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		log.Infof("服务启动于 %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("正在关闭 HTTP 服务...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close 释放存储与外部连接。可以在 New 失败的半初始化状态下调用。
func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			log.Errorf("关闭 Redis 连接失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Errorf("关闭数据库失败: %v", err)
		}
	}
}
