package processor

import (
	"math"
	"sort"
	"time"

	"iot-simulator/internal/models"
)

// Statistics 返回某传感器的聚合统计，优先使用未过期的缓存
// 只统计 active 状态的数值读数；没有可用数据时返回 nil
// 重新计算的结果写回缓存并刷新过期时间
func (p *DataProcessor) Statistics(sensorID string, useCache bool) *models.SensorStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statisticsLocked(sensorID, useCache)
}

// AllStatistics 返回所有有历史数据的传感器的统计
// 无可用数值的传感器对应 nil 条目
func (p *DataProcessor) AllStatistics() map[string]*models.SensorStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]*models.SensorStatistics, len(p.data))
	for sensorID := range p.data {
		out[sensorID] = p.statisticsLocked(sensorID, true)
	}
	return out
}

// statisticsLocked 统计计算主体，调用方必须已持有独占锁
func (p *DataProcessor) statisticsLocked(sensorID string, useCache bool) *models.SensorStatistics {
	if useCache {
		if entry, ok := p.statsCache[sensorID]; ok && time.Now().Before(entry.expiresAt) {
			p.cacheHits++
			stats := entry.stats
			return &stats
		}
	}
	p.cacheMisses++

	r, ok := p.data[sensorID]
	if !ok || r.len() == 0 {
		return nil
	}

	readings := r.snapshot()
	values := make([]float64, 0, len(readings))
	for _, reading := range readings {
		if reading.Status == models.StatusActive && isNumeric(reading.Value) {
			values = append(values, reading.Value)
		}
	}

	if len(values) == 0 {
		return nil
	}

	stats := models.SensorStatistics{
		SensorID:        sensorID,
		TotalReadings:   len(readings),
		ActiveReadings:  len(values),
		MinValue:        minOf(values),
		MaxValue:        maxOf(values),
		Average:         round2(mean(values)),
		Median:          round2(median(values)),
		LatestValue:     values[len(values)-1],
		Unit:            readings[len(readings)-1].Unit,
		CalculationTime: time.Now(),
	}

	if len(values) > 1 {
		variance := sampleVariance(values)
		stats.StdDeviation = floatPtr(round2(math.Sqrt(variance)))
		stats.Variance = floatPtr(round2(variance))
	}

	if len(values) >= 5 {
		recentAvg := mean(values[len(values)-5:])
		olderAvg := recentAvg
		if len(values) >= 10 {
			olderAvg = mean(values[len(values)-10 : len(values)-5])
		}

		// 最近 5 个值的均值与之前 5 个比较，±5% 以内视为平稳
		trend := "stable"
		switch {
		case recentAvg > olderAvg*1.05:
			trend = "increasing"
		case recentAvg < olderAvg*0.95:
			trend = "decreasing"
		}
		stats.Trend = &trend

		change := 0.0
		if olderAvg != 0 {
			change = round2((recentAvg - olderAvg) / olderAvg * 100)
		}
		stats.TrendChange = &change
	}

	p.statsCache[sensorID] = statsCacheEntry{
		stats:     stats,
		expiresAt: time.Now().Add(p.cacheDuration),
	}

	return &stats
}

func isNumeric(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// sampleVariance 样本方差（n-1 分母）
func sampleVariance(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values)-1)
}

func floatPtr(v float64) *float64 {
	return &v
}
