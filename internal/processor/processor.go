package processor

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"iot-simulator/internal/config"
	"iot-simulator/internal/models"
)

// 每条读数的粗略内存占用估算（字节）
const bytesPerReading = 500

var (
	// ErrUnsupportedFormat 导出格式不受支持
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrAlertNotFound 告警 ID 不存在
	ErrAlertNotFound = errors.New("alert not found")
)

// AlertNotifier 新告警的外部通知回调
// 在处理器锁之外调用，实现方不得长时间阻塞
type AlertNotifier interface {
	NotifyAlert(alert models.AlertEvent)
}

// DataProcessor 数据处理核心：
// 每个传感器一个环形缓冲的历史、带 TTL 的统计缓存、传感器元数据和告警列表。
// 所有可变状态由单个锁保护，写操作（Store/Clear/告警状态变更）取独占锁，
// 快照类读取取共享锁
type DataProcessor struct {
	mu     sync.RWMutex
	logger *zap.Logger

	maxReadings   int
	cacheDuration time.Duration
	thresholds    map[models.SensorType]config.AlertThreshold

	data     map[string]*ring
	metadata map[string]*models.SensorMeta

	statsCache  map[string]statsCacheEntry
	cacheHits   int64
	cacheMisses int64

	alerts        []*models.AlertEvent
	totalReadings int64
	startTime     time.Time

	notifier AlertNotifier
}

// statsCacheEntry 统计缓存条目，带过期时间
type statsCacheEntry struct {
	stats     models.SensorStatistics
	expiresAt time.Time
}

// NewDataProcessor 创建数据处理器
func NewDataProcessor(cfg *config.Config, logger *zap.Logger) *DataProcessor {
	return &DataProcessor{
		logger:        logger,
		maxReadings:   cfg.Data.MaxReadingsPerSensor,
		cacheDuration: cfg.Data.CacheDuration,
		thresholds:    cfg.Alerts,
		data:          make(map[string]*ring),
		metadata:      make(map[string]*models.SensorMeta),
		statsCache:    make(map[string]statsCacheEntry),
		startTime:     time.Now(),
	}
}

// SetAlertNotifier 注册告警通知回调
func (p *DataProcessor) SetAlertNotifier(n AlertNotifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifier = n
}

// Store 存入一条读数：写入环形缓冲、更新元数据、失效统计缓存、评估告警。
// 单条读数的失败不影响其他传感器的历史
func (p *DataProcessor) Store(reading models.SensorReading) error {
	if reading.SensorID == "" {
		err := fmt.Errorf("failed to store reading: empty sensor id")
		p.logger.Error("Error storing reading", zap.Error(err))
		return err
	}

	p.mu.Lock()

	r, ok := p.data[reading.SensorID]
	if !ok {
		r = newRing(p.maxReadings)
		p.data[reading.SensorID] = r
	}
	r.add(reading)

	meta, ok := p.metadata[reading.SensorID]
	if !ok {
		meta = &models.SensorMeta{
			FirstReading: reading.Timestamp,
			SensorType:   reading.SensorType,
			Location:     reading.Location,
			Name:         reading.Name,
			Unit:         reading.Unit,
		}
		p.metadata[reading.SensorID] = meta
	}
	meta.LastReading = reading.Timestamp
	meta.TotalReadings = r.len()
	meta.Status = reading.Status

	delete(p.statsCache, reading.SensorID)
	p.totalReadings++

	created := p.checkAlerts(reading)
	notifier := p.notifier

	p.mu.Unlock()

	p.logger.Debug("Stored reading",
		zap.String("sensor_id", reading.SensorID),
		zap.Float64("value", reading.Value),
		zap.String("unit", reading.Unit),
	)

	// 通知在锁外执行，告警风暴也不会阻塞采集循环
	if notifier != nil {
		for _, alert := range created {
			notifier.NotifyAlert(*alert)
		}
	}

	return nil
}

// History 返回某传感器的历史快照，最新读数在前；未知传感器返回空
func (p *DataProcessor) History(sensorID string, limit int) []models.SensorReading {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.data[sensorID]
	if !ok {
		return []models.SensorReading{}
	}

	readings := r.snapshot()
	out := make([]models.SensorReading, 0, len(readings))
	for i := len(readings) - 1; i >= 0; i-- {
		out = append(out, readings[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Recent 返回最近 minutes 分钟内的读数，最新在前
// 读数按时间有序，从尾部反向扫描遇到过期读数即可提前结束
func (p *DataProcessor) Recent(sensorID string, minutes int) []models.SensorReading {
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)

	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.data[sensorID]
	if !ok {
		return []models.SensorReading{}
	}

	readings := r.snapshot()
	out := make([]models.SensorReading, 0)
	for i := len(readings) - 1; i >= 0; i-- {
		if readings[i].Timestamp.Before(cutoff) {
			break
		}
		out = append(out, readings[i])
	}
	return out
}

// SystemInfo 返回处理器运行状态快照
func (p *DataProcessor) SystemInfo() models.SystemInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.systemInfoLocked()
}

// systemInfoLocked 计算系统信息，调用方必须已持有锁
func (p *DataProcessor) systemInfoLocked() models.SystemInfo {
	uptime := time.Since(p.startTime).Seconds()

	activeSensors := 0
	sensors := make([]string, 0, len(p.metadata))
	for id, meta := range p.metadata {
		sensors = append(sensors, id)
		if meta.TotalReadings > 0 {
			activeSensors++
		}
	}
	sort.Strings(sensors)

	activeAlerts := 0
	for _, alert := range p.alerts {
		if alert.IsActive() {
			activeAlerts++
		}
	}

	totalItems := 0
	for _, r := range p.data {
		totalItems += r.len()
	}

	processingRate := 0.0
	if uptime > 0 {
		processingRate = round2(float64(p.totalReadings) / uptime)
	}

	return models.SystemInfo{
		TotalSensors:   len(p.data),
		ActiveSensors:  activeSensors,
		TotalReadings:  p.totalReadings,
		TotalAlerts:    len(p.alerts),
		ActiveAlerts:   activeAlerts,
		UptimeSeconds:  round2(uptime),
		UptimeHours:    round2(uptime / 3600),
		MemoryUsageMB:  round2(float64(totalItems*bytesPerReading) / (1024 * 1024)),
		CacheHitRatio:  p.cacheHitRatioLocked(),
		Sensors:        sensors,
		ProcessingRate: processingRate,
	}
}

func (p *DataProcessor) cacheHitRatioLocked() float64 {
	total := p.cacheHits + p.cacheMisses
	if total == 0 {
		return 0.0
	}
	return round2(float64(p.cacheHits) / float64(total))
}

// Clear 清除单个传感器的历史、缓存和元数据；
// 不带 sensorID 时重置全部状态（包括告警和计数器）
func (p *DataProcessor) Clear(sensorID *string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sensorID != nil {
		if r, ok := p.data[*sensorID]; ok {
			r.clear()
			delete(p.statsCache, *sensorID)
			delete(p.metadata, *sensorID)
		}
		return
	}

	p.data = make(map[string]*ring)
	p.metadata = make(map[string]*models.SensorMeta)
	p.statsCache = make(map[string]statsCacheEntry)
	p.alerts = nil
	p.totalReadings = 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
