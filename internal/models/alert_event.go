package models

import (
	"time"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// 告警类型（阈值越界方向）
const (
	AlertTypeHighThreshold = "high_threshold"
	AlertTypeLowThreshold  = "low_threshold"
)

// AlertEvent 阈值告警事件
// Resolved 为 true 时 ResolvedAt 必定已设置且不早于 Timestamp
type AlertEvent struct {
	AlertID        string         `json:"alert_id"`
	SensorID       string         `json:"sensor_id"`
	AlertType      string         `json:"alert_type"` // high_threshold, low_threshold
	Level          AlertLevel     `json:"level"`
	Message        string         `json:"message"`
	Value          float64        `json:"value"`
	Threshold      float64        `json:"threshold"`
	Timestamp      time.Time      `json:"timestamp"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy *string        `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	Resolved       bool           `json:"resolved"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Acknowledge 标记告警已被某操作者确认
func (a *AlertEvent) Acknowledge(by string) {
	now := time.Now()
	a.Acknowledged = true
	a.AcknowledgedBy = &by
	a.AcknowledgedAt = &now
}

// Resolve 标记告警已解决
func (a *AlertEvent) Resolve() {
	now := time.Now()
	a.Resolved = true
	a.ResolvedAt = &now
}

// IsActive 告警是否仍未解决
func (a *AlertEvent) IsActive() bool {
	return !a.Resolved
}

// Duration 告警持续时长，未解决时计算到当前时刻
func (a *AlertEvent) Duration() time.Duration {
	if a.Resolved && a.ResolvedAt != nil {
		return a.ResolvedAt.Sub(a.Timestamp)
	}
	return time.Since(a.Timestamp)
}
