package models

import (
	"time"
)

// 服务端下行消息类型
const (
	MessageTypeSensorData    = "sensor_data"
	MessageTypeSensorList    = "sensor_list"
	MessageTypeSensorHistory = "sensor_history"
	MessageTypeStatistics    = "statistics"
	MessageTypeSystemInfo    = "system_info"
	MessageTypeAlerts        = "alerts"
)

// 客户端上行命令
const (
	CommandGetSensors       = "get_sensors"
	CommandGetHistory       = "get_history"
	CommandGetStatistics    = "get_statistics"
	CommandToggleSensor     = "toggle_sensor"
	CommandGetSystemInfo    = "get_system_info"
	CommandGetAlerts        = "get_alerts"
	CommandAcknowledgeAlert = "acknowledge_alert"
	CommandResolveAlert     = "resolve_alert"
)

// Envelope 用于识别下行消息类型的最小信封
type Envelope struct {
	Type string `json:"type"`
}

// ClientCommand 客户端命令信封，未使用的参数字段留空
type ClientCommand struct {
	Command        string    `json:"command"`
	SensorID       string    `json:"sensor_id,omitempty"`
	Limit          *int      `json:"limit,omitempty"`
	Minutes        *int      `json:"minutes,omitempty"`
	ActiveOnly     *bool     `json:"active_only,omitempty"`
	AlertID        string    `json:"alert_id,omitempty"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SensorSummary 花名册中的单个传感器条目
type SensorSummary struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Location     string       `json:"location"`
	SensorType   SensorType   `json:"sensor_type"`
	Status       SensorStatus `json:"status"`
	Unit         string       `json:"unit"`
	ReadingCount int64        `json:"reading_count"`
}

// ServerInfo 花名册附带的服务端摘要
type ServerInfo struct {
	TotalSensors     int `json:"total_sensors"`
	ConnectedClients int `json:"connected_clients"`
}

// SensorDataMessage 周期广播的单条读数消息
type SensorDataMessage struct {
	Type      string        `json:"type"`
	Data      SensorReading `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
}

// SensorListMessage 传感器花名册消息，连接建立时和 toggle 后推送
type SensorListMessage struct {
	Type       string          `json:"type"`
	Sensors    []SensorSummary `json:"sensors"`
	Timestamp  time.Time       `json:"timestamp"`
	ServerInfo ServerInfo      `json:"server_info"`
}

// SensorHistoryMessage 历史查询响应，最新读数在前
type SensorHistoryMessage struct {
	Type          string          `json:"type"`
	SensorID      string          `json:"sensor_id"`
	History       []SensorReading `json:"history"`
	TotalReadings int             `json:"total_readings"`
}

// StatisticsMessage 统计查询响应
// 查询单个传感器时 Statistics 是一个 SensorStatistics 对象且 SensorID 非空，
// 全量查询时 Statistics 是 sensor_id 到统计的映射、SensorID 为 null
type StatisticsMessage struct {
	Type       string  `json:"type"`
	SensorID   *string `json:"sensor_id"`
	Statistics any     `json:"statistics"`
}

// ServerSystemInfo 处理器系统信息合并连接层指标
type ServerSystemInfo struct {
	SystemInfo
	ServerUptime           time.Time `json:"server_uptime"`
	ConnectedClients       int       `json:"connected_clients"`
	TotalClientConnections int64     `json:"total_client_connections"`
}

// SystemInfoMessage 系统信息响应
type SystemInfoMessage struct {
	Type string           `json:"type"`
	Info ServerSystemInfo `json:"info"`
}

// AlertsMessage 告警查询响应
type AlertsMessage struct {
	Type   string       `json:"type"`
	Alerts []AlertEvent `json:"alerts"`
	Count  int          `json:"count"`
}
