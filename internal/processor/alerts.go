package processor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"iot-simulator/internal/models"
)

// AlertFilters 告警查询条件，nil 字段表示不过滤，条件之间取交集
type AlertFilters struct {
	SensorID   *string
	ActiveOnly *bool
	Minutes    *int
}

// checkAlerts 对一条新读数做阈值评估，调用方必须已持有独占锁
// 高低两个边界独立判断，同一条读数可以同时触发两条告警
func (p *DataProcessor) checkAlerts(reading models.SensorReading) []*models.AlertEvent {
	threshold, ok := p.thresholds[reading.SensorType]
	if !ok || !threshold.Enabled || !isNumeric(reading.Value) {
		return nil
	}

	var created []*models.AlertEvent

	if threshold.High != nil && reading.Value > *threshold.High {
		created = append(created, newAlert(reading, models.AlertTypeHighThreshold, *threshold.High, "above"))
	}
	if threshold.Low != nil && reading.Value < *threshold.Low {
		created = append(created, newAlert(reading, models.AlertTypeLowThreshold, *threshold.Low, "below"))
	}

	for _, alert := range created {
		p.alerts = append(p.alerts, alert)
		p.logger.Warn("Alert triggered",
			zap.String("alert_id", alert.AlertID),
			zap.String("sensor_id", alert.SensorID),
			zap.String("alert_type", alert.AlertType),
			zap.String("message", alert.Message),
		)
	}

	return created
}

func newAlert(reading models.SensorReading, alertType string, threshold float64, direction string) *models.AlertEvent {
	return &models.AlertEvent{
		AlertID:   uuid.New().String(),
		SensorID:  reading.SensorID,
		AlertType: alertType,
		Level:     models.AlertLevelWarning,
		Message: fmt.Sprintf("%s reading %s threshold: %.1f %s",
			reading.SensorType, direction, reading.Value, reading.Unit),
		Value:     reading.Value,
		Threshold: threshold,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"location":    reading.Location,
			"sensor_name": reading.Name,
		},
	}
}

// Alerts 按条件过滤告警，返回快照副本
func (p *DataProcessor) Alerts(filters AlertFilters) []models.AlertEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var cutoff time.Time
	if filters.Minutes != nil {
		cutoff = time.Now().Add(-time.Duration(*filters.Minutes) * time.Minute)
	}

	out := make([]models.AlertEvent, 0)
	for _, alert := range p.alerts {
		if filters.SensorID != nil && alert.SensorID != *filters.SensorID {
			continue
		}
		if filters.ActiveOnly != nil && *filters.ActiveOnly && !alert.IsActive() {
			continue
		}
		if filters.Minutes != nil && alert.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, *alert)
	}
	return out
}

// AcknowledgeAlert 确认一条告警
func (p *DataProcessor) AcknowledgeAlert(alertID, acknowledgedBy string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, alert := range p.alerts {
		if alert.AlertID == alertID {
			alert.Acknowledge(acknowledgedBy)
			p.logger.Info("Alert acknowledged",
				zap.String("alert_id", alertID),
				zap.String("acknowledged_by", acknowledgedBy),
			)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}

// ResolveAlert 将一条告警标记为已解决
func (p *DataProcessor) ResolveAlert(alertID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, alert := range p.alerts {
		if alert.AlertID == alertID {
			alert.Resolve()
			p.logger.Info("Alert resolved", zap.String("alert_id", alertID))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}
