package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"iot-simulator/internal/bridge"
	"iot-simulator/internal/config"
	"iot-simulator/internal/notifier"
	"iot-simulator/internal/processor"
	"iot-simulator/internal/sensor"
	"iot-simulator/internal/server"
)

// SimulatorService 模拟器服务（整合各层）
type SimulatorService struct {
	config *config.Config
	logger *zap.Logger

	// 各层组件
	processor *processor.DataProcessor
	sensors   []sensor.Sensor
	server    *server.BroadcastServer
	publisher *bridge.Publisher         // MQTT 桥接，可选
	notifier  *notifier.WebhookNotifier // Webhook 告警通知，可选

	notifierCancel context.CancelFunc
}

// NewSimulatorService 创建模拟器服务
func NewSimulatorService(cfg *config.Config, logger *zap.Logger) (*SimulatorService, error) {
	// 1. 创建数据处理器
	proc := processor.NewDataProcessor(cfg, logger)

	// 2. 创建默认传感器花名册
	sensors, err := defaultRoster()
	if err != nil {
		return nil, fmt.Errorf("failed to create sensors: %w", err)
	}

	// 3. 创建广播服务端
	srv := server.NewBroadcastServer(cfg, proc, sensors, logger)

	svc := &SimulatorService{
		config:    cfg,
		logger:    logger,
		processor: proc,
		sensors:   sensors,
		server:    srv,
	}

	// 4. 可选：连接 MQTT 桥接并挂到读数分发链上
	if cfg.MQTT.Enabled {
		publisher, err := bridge.NewPublisher(cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create mqtt publisher: %w", err)
		}
		srv.AddReadingSink(publisher)
		svc.publisher = publisher
	}

	// 5. 可选：注册 Webhook 告警通知
	if cfg.Webhook.URL != "" {
		svc.notifier = notifier.NewWebhookNotifier(cfg.Webhook, logger)
		proc.SetAlertNotifier(svc.notifier)
	}

	return svc, nil
}

// defaultRoster 默认传感器花名册：客厅温度、客厅湿度、前门运动
func defaultRoster() ([]sensor.Sensor, error) {
	temperature, err := sensor.New(sensor.TypeTemperature, "temperature", "Living Room",
		sensor.WithName("Living Room Temperature"))
	if err != nil {
		return nil, fmt.Errorf("failed to create temperature sensor: %w", err)
	}

	humidity, err := sensor.New(sensor.TypeHumidity, "humidity", "Living Room",
		sensor.WithName("Living Room Humidity"))
	if err != nil {
		return nil, fmt.Errorf("failed to create humidity sensor: %w", err)
	}

	motion, err := sensor.New(sensor.TypeMotion, "motion", "Front Door",
		sensor.WithName("Front Door Motion"))
	if err != nil {
		return nil, fmt.Errorf("failed to create motion sensor: %w", err)
	}

	return []sensor.Sensor{temperature, humidity, motion}, nil
}

// Start 启动服务，阻塞直到 HTTP 监听退出
func (s *SimulatorService) Start(ctx context.Context) error {
	s.logger.Info("Starting sensor simulator",
		zap.String("addr", s.config.Server.Addr()),
		zap.Duration("read_interval", s.config.Server.SensorReadInterval),
		zap.Int("sensors", len(s.sensors)),
		zap.Bool("mqtt_enabled", s.publisher != nil),
		zap.Bool("webhook_enabled", s.notifier != nil),
	)

	if s.notifier != nil {
		notifierCtx, cancel := context.WithCancel(ctx)
		s.notifierCancel = cancel
		s.notifier.Start(notifierCtx)
	}

	return s.server.Start()
}

// Stop 停止服务，按启动相反顺序收尾
func (s *SimulatorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping sensor simulator")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop server",
			zap.Error(err),
		)
	}

	if s.notifierCancel != nil {
		s.notifierCancel()
		s.notifier.Stop()
	}

	if s.publisher != nil {
		s.publisher.Close()
	}

	s.logger.Info("Sensor simulator stopped")
	return nil
}
