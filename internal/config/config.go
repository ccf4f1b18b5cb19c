package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"iot-simulator/internal/models"
)

// ServerConfig 广播服务配置
type ServerConfig struct {
	Host               string
	Port               int
	SensorReadInterval time.Duration // 周期采集间隔
	MaxClients         int
}

// Addr 返回监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DataConfig 数据处理器配置
type DataConfig struct {
	MaxReadingsPerSensor int           // 每个传感器的环形缓冲容量
	CacheDuration        time.Duration // 统计缓存有效期
}

// AlertThreshold 单个传感器类型的告警阈值，未定义的边界留空
type AlertThreshold struct {
	High    *float64
	Low     *float64
	Enabled bool
}

// MQTTConfig MQTT 桥接配置，默认关闭
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// WebhookConfig 告警 Webhook 配置，URL 为空时禁用
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// HTTPConfig HTTP 层配置
type HTTPConfig struct {
	AllowedOrigins []string
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

// Config 模拟器配置，启动时构造一次，之后只读
type Config struct {
	Server  ServerConfig
	Data    DataConfig
	Alerts  map[models.SensorType]AlertThreshold
	MQTT    MQTTConfig
	Webhook WebhookConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Server.Host = getEnv("WEBSOCKET_HOST", "localhost")
	cfg.Server.Port = getEnvInt("WEBSOCKET_PORT", 8765)
	cfg.Server.SensorReadInterval = time.Duration(getEnvFloat("SENSOR_INTERVAL", 2.0) * float64(time.Second))
	cfg.Server.MaxClients = getEnvInt("MAX_CLIENTS", 10)

	cfg.Data.MaxReadingsPerSensor = getEnvInt("MAX_READINGS", 1000)
	cfg.Data.CacheDuration = time.Duration(getEnvInt("CACHE_DURATION", 30)) * time.Second

	cfg.Alerts = map[models.SensorType]AlertThreshold{
		models.SensorTypeTemperature: {
			High:    floatPtr(getEnvFloat("TEMP_HIGH_ALERT", 28.0)),
			Low:     floatPtr(getEnvFloat("TEMP_LOW_ALERT", 15.0)),
			Enabled: getEnvBool("TEMP_ALERTS_ENABLED", true),
		},
		models.SensorTypeHumidity: {
			High:    floatPtr(getEnvFloat("HUMIDITY_HIGH_ALERT", 70.0)),
			Low:     floatPtr(getEnvFloat("HUMIDITY_LOW_ALERT", 30.0)),
			Enabled: getEnvBool("HUMIDITY_ALERTS_ENABLED", true),
		},
		models.SensorTypeLight: {
			Low:     floatPtr(getEnvFloat("LIGHT_LOW_ALERT", 10.0)),
			Enabled: getEnvBool("LIGHT_ALERTS_ENABLED", false),
		},
	}

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "iot-simulator")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "iot-simulator/sensors")

	cfg.Webhook.URL = getEnv("WEBHOOK_URL", "")
	cfg.Webhook.Timeout = time.Duration(getEnvInt("WEBHOOK_TIMEOUT", 10)) * time.Second

	cfg.HTTP.AllowedOrigins = splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Validate 检查配置边界，返回告警列表（不阻止启动）
func (c *Config) Validate() []string {
	var warnings []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		warnings = append(warnings, "server port must be between 1 and 65535")
	}
	if c.Server.SensorReadInterval < 100*time.Millisecond {
		warnings = append(warnings, "sensor read interval must be at least 0.1 seconds")
	}
	if c.Server.MaxClients < 1 {
		warnings = append(warnings, "max clients must be at least 1")
	}
	if c.Data.MaxReadingsPerSensor < 10 {
		warnings = append(warnings, "max readings per sensor must be at least 10")
	}
	if c.Data.CacheDuration < time.Second {
		warnings = append(warnings, "cache duration must be at least 1 second")
	}

	return warnings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true")
	}
	return defaultValue
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func floatPtr(v float64) *float64 {
	return &v
}
