package models

import (
	"time"
)

// SensorStatistics 单个传感器的聚合统计
// StdDeviation/Variance 仅在有效读数多于 1 条时填充，
// Trend/TrendChange 仅在有效读数不少于 5 条时填充
type SensorStatistics struct {
	SensorID        string    `json:"sensor_id"`
	TotalReadings   int       `json:"total_readings"`
	ActiveReadings  int       `json:"active_readings"`
	MinValue        float64   `json:"min_value"`
	MaxValue        float64   `json:"max_value"`
	Average         float64   `json:"average"`
	Median          float64   `json:"median"`
	LatestValue     float64   `json:"latest_value"`
	Unit            string    `json:"unit"`
	CalculationTime time.Time `json:"calculation_time"`
	StdDeviation    *float64  `json:"std_deviation,omitempty"`
	Variance        *float64  `json:"variance,omitempty"`
	Trend           *string   `json:"trend,omitempty"` // increasing, decreasing, stable
	TrendChange     *float64  `json:"trend_change,omitempty"`
}

// SensorMeta 传感器元数据，随每条入库读数更新
type SensorMeta struct {
	FirstReading  time.Time    `json:"first_reading"`
	LastReading   time.Time    `json:"last_reading"`
	SensorType    SensorType   `json:"sensor_type"`
	Location      string       `json:"location"`
	Name          string       `json:"name"`
	Unit          string       `json:"unit"`
	TotalReadings int          `json:"total_readings"`
	Status        SensorStatus `json:"status"`
}

// SystemInfo 数据处理器的运行状态快照
type SystemInfo struct {
	TotalSensors   int      `json:"total_sensors"`
	ActiveSensors  int      `json:"active_sensors"`
	TotalReadings  int64    `json:"total_readings"`
	TotalAlerts    int      `json:"total_alerts"`
	ActiveAlerts   int      `json:"active_alerts"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
	UptimeHours    float64  `json:"uptime_hours"`
	MemoryUsageMB  float64  `json:"memory_usage_mb"`
	CacheHitRatio  float64  `json:"cache_hit_ratio"`
	Sensors        []string `json:"sensors"`
	ProcessingRate float64  `json:"processing_rate"`
}
