package processor_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-simulator/internal/models"
	"iot-simulator/internal/processor"
)

func storeValues(t *testing.T, p *processor.DataProcessor, sensorID string, values ...float64) {
	t.Helper()
	now := time.Now()
	for i, v := range values {
		require.NoError(t, p.Store(tempReading(sensorID, v, now.Add(time.Duration(i)*time.Second))))
	}
}

func TestStatistics_BasicAggregates(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 10, 20, 30)

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)

	assert.Equal(t, "temp_1", stats.SensorID)
	assert.Equal(t, 3, stats.TotalReadings)
	assert.Equal(t, 3, stats.ActiveReadings)
	assert.Equal(t, 10.0, stats.MinValue)
	assert.Equal(t, 30.0, stats.MaxValue)
	assert.Equal(t, 20.0, stats.Average)
	assert.Equal(t, 20.0, stats.Median)
	assert.Equal(t, 30.0, stats.LatestValue)
	assert.Equal(t, "°C", stats.Unit)
	assert.False(t, stats.CalculationTime.IsZero())

	require.NotNil(t, stats.StdDeviation)
	require.NotNil(t, stats.Variance)
	assert.Equal(t, 10.0, *stats.StdDeviation)
	assert.Equal(t, 100.0, *stats.Variance)

	// 数据不足 5 条时不计算趋势
	assert.Nil(t, stats.Trend)
	assert.Nil(t, stats.TrendChange)
}

func TestStatistics_SingleReading(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 22.5)

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	assert.Equal(t, 22.5, stats.MinValue)
	assert.Equal(t, 22.5, stats.MaxValue)
	assert.Equal(t, 22.5, stats.Median)
	assert.Nil(t, stats.StdDeviation)
	assert.Nil(t, stats.Variance)
}

func TestStatistics_MedianEvenCount(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 10, 40, 20, 30)

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	assert.Equal(t, 25.0, stats.Median)
	assert.Equal(t, 25.0, stats.Average)
}

func TestStatistics_UnknownSensor(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	assert.Nil(t, p.Statistics("no_such_sensor", false))
}

func TestStatistics_SkipsInactiveAndNonNumeric(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	now := time.Now()

	require.NoError(t, p.Store(tempReading("temp_1", 10.0, now)))
	require.NoError(t, p.Store(tempReading("temp_1", 20.0, now.Add(time.Second))))

	inactive := tempReading("temp_1", 0.0, now.Add(2*time.Second))
	inactive.Status = models.StatusInactive
	require.NoError(t, p.Store(inactive))

	nan := tempReading("temp_1", math.NaN(), now.Add(3*time.Second))
	require.NoError(t, p.Store(nan))

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.TotalReadings)
	assert.Equal(t, 2, stats.ActiveReadings)
	// 最新值取最后一个有效读数
	assert.Equal(t, 20.0, stats.LatestValue)
	assert.Equal(t, 10.0, stats.MinValue)
	assert.Equal(t, 20.0, stats.MaxValue)
}

func TestStatistics_OnlyInactiveReadings(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)

	inactive := tempReading("temp_1", 0.0, time.Now())
	inactive.Status = models.StatusInactive
	require.NoError(t, p.Store(inactive))

	assert.Nil(t, p.Statistics("temp_1", false))
}

func TestStatistics_TrendIncreasing(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 10, 10, 10, 10, 10, 20, 20, 20, 20, 20)

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	require.NotNil(t, stats.Trend)
	assert.Equal(t, "increasing", *stats.Trend)
	require.NotNil(t, stats.TrendChange)
	assert.Equal(t, 100.0, *stats.TrendChange)
}

func TestStatistics_TrendDecreasing(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 20, 20, 20, 20, 20, 10, 10, 10, 10, 10)

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	require.NotNil(t, stats.Trend)
	assert.Equal(t, "decreasing", *stats.Trend)
	require.NotNil(t, stats.TrendChange)
	assert.Equal(t, -50.0, *stats.TrendChange)
}

func TestStatistics_TrendStable(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 20, 20, 20, 20, 20, 20, 20, 20, 20, 20)

	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	require.NotNil(t, stats.Trend)
	assert.Equal(t, "stable", *stats.Trend)
	assert.Equal(t, 0.0, *stats.TrendChange)
}

func TestStatistics_TrendWithFiveReadings(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 10, 12, 14, 16, 18)

	// 不足 10 条时与自身比较，趋势必为 stable
	stats := p.Statistics("temp_1", false)
	require.NotNil(t, stats)
	require.NotNil(t, stats.Trend)
	assert.Equal(t, "stable", *stats.Trend)
	assert.Equal(t, 0.0, *stats.TrendChange)
}

func TestStatistics_CacheHitCounting(t *testing.T) {
	p := newTestProcessor(100, time.Hour)
	storeValues(t, p, "temp_1", 10, 20, 30)

	first := p.Statistics("temp_1", true)
	require.NotNil(t, first)

	second := p.Statistics("temp_1", true)
	require.NotNil(t, second)
	assert.Equal(t, first.CalculationTime, second.CalculationTime)

	// 一次未命中 + 一次命中
	assert.Equal(t, 0.5, p.SystemInfo().CacheHitRatio)
}

func TestStatistics_CacheInvalidatedByStore(t *testing.T) {
	p := newTestProcessor(100, time.Hour)
	storeValues(t, p, "temp_1", 10, 20, 30)

	first := p.Statistics("temp_1", true)
	require.NotNil(t, first)
	assert.Equal(t, 30.0, first.LatestValue)

	storeValues(t, p, "temp_1", 40)

	// 写入后缓存失效，结果反映新数据
	second := p.Statistics("temp_1", true)
	require.NotNil(t, second)
	assert.Equal(t, 40.0, second.LatestValue)
	assert.Equal(t, 40.0, second.MaxValue)
}

func TestStatistics_CacheExpires(t *testing.T) {
	p := newTestProcessor(100, time.Millisecond)
	storeValues(t, p, "temp_1", 10, 20, 30)

	first := p.Statistics("temp_1", true)
	require.NotNil(t, first)

	time.Sleep(5 * time.Millisecond)

	second := p.Statistics("temp_1", true)
	require.NotNil(t, second)
	assert.True(t, second.CalculationTime.After(first.CalculationTime))
}

func TestStatistics_BypassCache(t *testing.T) {
	p := newTestProcessor(100, time.Hour)
	storeValues(t, p, "temp_1", 10, 20, 30)

	first := p.Statistics("temp_1", true)
	require.NotNil(t, first)

	time.Sleep(time.Millisecond)

	second := p.Statistics("temp_1", false)
	require.NotNil(t, second)
	assert.True(t, second.CalculationTime.After(first.CalculationTime))
}

func TestAllStatistics(t *testing.T) {
	p := newTestProcessor(100, 30*time.Second)
	storeValues(t, p, "temp_1", 10, 20, 30)
	storeValues(t, p, "temp_2", 40, 50)

	errReading := tempReading("temp_3", 0.0, time.Now())
	errReading.Status = models.StatusError
	require.NoError(t, p.Store(errReading))

	all := p.AllStatistics()
	require.Len(t, all, 3)

	require.NotNil(t, all["temp_1"])
	assert.Equal(t, 20.0, all["temp_1"].Average)

	require.NotNil(t, all["temp_2"])
	assert.Equal(t, 45.0, all["temp_2"].Average)

	// 没有有效数值的传感器对应 nil 条目
	require.Contains(t, all, "temp_3")
	assert.Nil(t, all["temp_3"])
}
