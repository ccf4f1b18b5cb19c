package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"iot-simulator/internal/client"
	"iot-simulator/internal/config"
	"iot-simulator/internal/logger"
	"iot-simulator/internal/models"
)

func main() {
	// 1. 确定服务端地址：WEBSOCKET_URL 优先，否则按配置拼接
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	url := os.Getenv("WEBSOCKET_URL")
	if url == "" {
		url = "ws://" + cfg.Server.Addr() + "/ws"
	}

	// 2. 初始化日志，展示输出走标准输出、内部事件走日志
	log, err := logger.NewLogger("warn", "console", "iot-client")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	fmt.Println("Simple WebSocket IoT Client")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Connecting to %s\n", url)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println(strings.Repeat("-", 40))

	// 3. 连接服务端，失败时按指数退避重试
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cli := client.NewClient(client.Options{
		URL:       url,
		Reconnect: true,
		Logger:    log,
	})
	if err := cli.Connect(ctx); err != nil {
		fmt.Println("Cannot connect to server!")
		fmt.Println("Make sure the simulator is running: iot-simulator")
		os.Exit(1)
	}
	defer cli.Close()
	fmt.Println("Connected to server!")

	// 4. 处理 Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nClient stopped by user")
		cancel()
		cli.Close()
	}()

	// 5. 读循环：打印花名册与逐条读数
	viewer := &textViewer{}
	err = cli.Listen(ctx, client.Handler{
		OnSensorList: viewer.showSensorList,
		OnSensorData: viewer.showReading,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Client error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Final count: %d messages received\n", viewer.messageCount)
}

// textViewer 终端文本视图，逐行打印读数并叠加简单的本地阈值提示
type textViewer struct {
	messageCount int
}

func (v *textViewer) showSensorList(msg models.SensorListMessage) {
	v.countMessage()

	fmt.Printf("\nConnected! Found %d sensors:\n", len(msg.Sensors))
	for _, s := range msg.Sensors {
		status := "ACTIVE"
		if s.Status != models.StatusActive {
			status = "INACTIVE"
		}
		fmt.Printf("  %s (%s) - %s\n", s.Name, s.SensorType, status)
		fmt.Printf("    Location: %s\n", s.Location)
	}
	fmt.Printf("\nServer: %d clients connected\n", msg.ServerInfo.ConnectedClients)
	fmt.Println(strings.Repeat("-", 60))
}

func (v *textViewer) showReading(msg models.SensorDataMessage) {
	v.countMessage()

	reading := msg.Data
	if reading.Status != models.StatusActive {
		return
	}

	timestamp := reading.Timestamp.Format("15:04:05")
	fmt.Printf("[%s] %s: %v %s\n", timestamp, reading.Name, reading.Value, reading.Unit)

	// 本地阈值提示，固定值与服务端告警阈值无关
	switch reading.SensorType {
	case models.SensorTypeTemperature:
		if reading.Value > 25 {
			fmt.Printf("  >> HIGH TEMPERATURE ALERT: %v°C in %s!\n", reading.Value, reading.Location)
		} else if reading.Value < 18 {
			fmt.Printf("  >> LOW TEMPERATURE ALERT: %v°C in %s!\n", reading.Value, reading.Location)
		}
	case models.SensorTypeHumidity:
		if reading.Value > 70 {
			fmt.Printf("  >> HIGH HUMIDITY ALERT: %v%% in %s!\n", reading.Value, reading.Location)
		} else if reading.Value < 30 {
			fmt.Printf("  >> LOW HUMIDITY ALERT: %v%% in %s!\n", reading.Value, reading.Location)
		}
	case models.SensorTypeMotion:
		if reading.Value == 1 {
			fmt.Printf("  >> MOTION DETECTED at %s!\n", reading.Location)
		}
	}
}

func (v *textViewer) countMessage() {
	v.messageCount++
	if v.messageCount%20 == 0 {
		fmt.Printf("\n--- Received %d messages ---\n", v.messageCount)
	}
}
