package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-simulator/internal/models"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.SensorReadInterval)
	assert.Equal(t, 10, cfg.Server.MaxClients)
	assert.Equal(t, "localhost:8765", cfg.Server.Addr())

	assert.Equal(t, 1000, cfg.Data.MaxReadingsPerSensor)
	assert.Equal(t, 30*time.Second, cfg.Data.CacheDuration)

	temp := cfg.Alerts[models.SensorTypeTemperature]
	require.NotNil(t, temp.High)
	require.NotNil(t, temp.Low)
	assert.Equal(t, 28.0, *temp.High)
	assert.Equal(t, 15.0, *temp.Low)
	assert.True(t, temp.Enabled)

	humidity := cfg.Alerts[models.SensorTypeHumidity]
	require.NotNil(t, humidity.High)
	assert.Equal(t, 70.0, *humidity.High)
	assert.Equal(t, 30.0, *humidity.Low)

	light := cfg.Alerts[models.SensorTypeLight]
	assert.Nil(t, light.High)
	require.NotNil(t, light.Low)
	assert.Equal(t, 10.0, *light.Low)
	assert.False(t, light.Enabled) // 光照告警默认关闭

	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "iot-simulator/sensors", cfg.MQTT.TopicPrefix)

	assert.Equal(t, "", cfg.Webhook.URL)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)

	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("WEBSOCKET_HOST", "0.0.0.0")
	os.Setenv("WEBSOCKET_PORT", "9001")
	os.Setenv("SENSOR_INTERVAL", "0.5")
	os.Setenv("MAX_CLIENTS", "25")
	os.Setenv("MAX_READINGS", "200")
	os.Setenv("CACHE_DURATION", "5")
	os.Setenv("TEMP_HIGH_ALERT", "31.5")
	os.Setenv("LIGHT_ALERTS_ENABLED", "true")
	os.Setenv("MQTT_ENABLED", "true")
	os.Setenv("MQTT_BROKER", "tcp://broker.test:1883")
	os.Setenv("WEBHOOK_URL", "http://alerts.test/hook")
	os.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, http://dash.test")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.SensorReadInterval)
	assert.Equal(t, 25, cfg.Server.MaxClients)
	assert.Equal(t, 200, cfg.Data.MaxReadingsPerSensor)
	assert.Equal(t, 5*time.Second, cfg.Data.CacheDuration)

	assert.Equal(t, 31.5, *cfg.Alerts[models.SensorTypeTemperature].High)
	assert.True(t, cfg.Alerts[models.SensorTypeLight].Enabled)

	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker.test:1883", cfg.MQTT.Broker)
	assert.Equal(t, "http://alerts.test/hook", cfg.Webhook.URL)
	assert.Equal(t, []string{"http://localhost:5173", "http://dash.test"}, cfg.HTTP.AllowedOrigins)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 清理环境变量
	os.Clearenv()
}

func TestValidate_AllValid(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	warnings := cfg.Validate()
	assert.Empty(t, warnings)
}

func TestValidate_OutOfRangeValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	cfg.Server.Port = 70000
	cfg.Server.SensorReadInterval = 50 * time.Millisecond
	cfg.Server.MaxClients = 0
	cfg.Data.MaxReadingsPerSensor = 5
	cfg.Data.CacheDuration = 500 * time.Millisecond

	warnings := cfg.Validate()
	assert.Len(t, warnings, 5)
	assert.Contains(t, warnings, "server port must be between 1 and 65535")
	assert.Contains(t, warnings, "sensor read interval must be at least 0.1 seconds")
	assert.Contains(t, warnings, "max clients must be at least 1")
	assert.Contains(t, warnings, "max readings per sensor must be at least 10")
	assert.Contains(t, warnings, "cache duration must be at least 1 second")
}

func TestGetEnv(t *testing.T) {
	// 测试默认值
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	// 测试环境变量存在
	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	// 清理
	os.Unsetenv("TEST_KEY")
}

func TestGetEnvHelpers_InvalidValues(t *testing.T) {
	os.Setenv("BAD_INT", "not-a-number")
	os.Setenv("BAD_FLOAT", "abc")

	assert.Equal(t, 42, getEnvInt("BAD_INT", 42))
	assert.Equal(t, 1.5, getEnvFloat("BAD_FLOAT", 1.5))
	assert.True(t, getEnvBool("MISSING_BOOL", true))

	os.Unsetenv("BAD_INT")
	os.Unsetenv("BAD_FLOAT")
}
