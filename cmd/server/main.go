// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pai-dashboard-go/internal/config"
	"pai-dashboard-go/internal/server"
	"pai-dashboard-go/pkg/log"
)

var configPath string

// rootCmd 启动看板后端服务
var rootCmd = &cobra.Command{
	Use:           "pai-dashboard",
	Short:         "AI 对话看板后端：REST API、WebSocket 实时通道与性能监控",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")
}

func run(ctx context.Context) error {
	// 1. 初始化配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 监听中断信号以优雅地关闭服务器
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg)
	if err != nil {
		log.Error("服务初始化失败", err)
		return err
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Error("服务异常退出", err)
		return err
	}
	log.Info("服务器已优雅关闭")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
