package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iot-simulator/internal/config"
	"iot-simulator/internal/logger"
	"iot-simulator/internal/service"
)

func main() {
	// 1. 加载 .env（不存在时忽略）
	_ = godotenv.Load()

	// 2. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 3. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "iot-simulator")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 4. 配置健康检查，问题项只告警不阻断
	for _, warning := range cfg.Validate() {
		log.Warn("Configuration warning", zap.String("issue", warning))
	}

	// 5. 创建服务
	simulator, err := service.NewSimulatorService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create simulator service",
			zap.Error(err),
		)
	}

	// 6. 启动服务（在 goroutine 中）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- simulator.Start(ctx)
	}()

	// 7. 等待信号（优雅关闭）
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Fatal("Service error",
				zap.Error(err),
			)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := simulator.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop simulator service",
			zap.Error(err),
		)
	}

	log.Info("Sensor simulator stopped")
}
