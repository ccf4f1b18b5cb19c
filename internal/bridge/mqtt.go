package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"iot-simulator/internal/config"
	"iot-simulator/internal/models"
)

// Publisher 把周期采集的读数桥接到 MQTT broker
// 每个传感器一个主题：<topic_prefix>/<sensor_id>，QoS 0 不保留
type Publisher struct {
	client mqtt.Client
	cfg    config.MQTTConfig
	logger *zap.Logger
}

// NewPublisher 连接 broker 并创建桥接发布器
func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Info("Connected to MQTT broker",
		zap.String("broker", cfg.Broker),
		zap.String("client_id", cfg.ClientID),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return &Publisher{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// PublishReading 发布一条读数，失败只记录日志，不影响采集循环
func (p *Publisher) PublishReading(reading models.SensorReading) {
	payload, err := json.Marshal(models.SensorDataMessage{
		Type:      models.MessageTypeSensorData,
		Data:      reading,
		Timestamp: time.Now(),
	})
	if err != nil {
		p.logger.Error("Failed to marshal reading for MQTT", zap.Error(err))
		return
	}

	topic := topicFor(p.cfg.TopicPrefix, reading.SensorID)
	token := p.client.Publish(topic, 0, false, payload)
	token.Wait()

	if token.Error() != nil {
		p.logger.Error("Failed to publish reading",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
		return
	}

	p.logger.Debug("Published reading", zap.String("topic", topic))
}

// IsConnected 检查连接状态
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close 断开连接
func (p *Publisher) Close() {
	p.client.Disconnect(250) // 250ms 等待时间
	p.logger.Info("Disconnected from MQTT broker")
}

func topicFor(prefix, sensorID string) string {
	return fmt.Sprintf("%s/%s", prefix, sensorID)
}
