package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/harrywg/mtconnect-agent/common/logger"
	"github.com/harrywg/mtconnect-agent/internal/config"
	"github.com/harrywg/mtconnect-agent/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "mtconnect-agent")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting mtconnect-agent service",
		zap.String("devices_file", cfg.Agent.DevicesFile),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Int("buffer_size", cfg.Agent.BufferSize),
		zap.Int("asset_buffer_size", cfg.Agent.AssetBufferSize),
		zap.Bool("adapter_enabled", cfg.Adapter.Enabled),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		zap.Bool("redis_ingest_enabled", cfg.Ingest.Enabled),
	)

	// 创建服务
	agentService, err := service.NewAgentService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create agent service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 在 goroutine 中启动服务
	go func() {
		if err := agentService.Start(ctx); err != nil {
			logger.Fatal("Failed to start agent service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := agentService.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped")
}
