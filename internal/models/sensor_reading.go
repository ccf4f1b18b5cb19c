package models

import (
	"time"
)

// SensorType 传感器类型
type SensorType string

const (
	SensorTypeTemperature SensorType = "TemperatureSensor"
	SensorTypeHumidity    SensorType = "HumiditySensor"
	SensorTypeMotion      SensorType = "MotionSensor"
	SensorTypeLight       SensorType = "LightSensor"
	SensorTypePressure    SensorType = "PressureSensor"
	SensorTypeAirQuality  SensorType = "AirQualitySensor"
)

// SensorStatus 传感器状态
type SensorStatus string

const (
	StatusActive      SensorStatus = "active"
	StatusInactive    SensorStatus = "inactive"
	StatusError       SensorStatus = "error"
	StatusMaintenance SensorStatus = "maintenance"
)

// SensorReading 单条传感器读数，构造后不再修改
type SensorReading struct {
	SensorID     string         `json:"sensor_id"`
	SensorType   SensorType     `json:"sensor_type"`
	Value        float64        `json:"value"`
	Unit         string         `json:"unit"`
	Status       SensorStatus   `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	Location     string         `json:"location"`
	Name         string         `json:"name"`
	ReadingCount int64          `json:"reading_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IsActive 读数是否来自正常工作的传感器
func (r SensorReading) IsActive() bool {
	return r.Status == StatusActive
}
