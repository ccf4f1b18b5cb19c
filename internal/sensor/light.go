package sensor

import (
	"math"
	"strings"
	"time"

	"iot-simulator/internal/models"
)

// LightSensor 光照传感器
// 白天按太阳高度角近似光照曲线（正午峰值约 1000 lux），夜间输出微弱底噪；
// 云层因子缓慢变化，室内位置统一衰减
type LightSensor struct {
	base
	timeOffset   float64 // 每个实例固定的小时偏移，让多个传感器错开相位
	cloudFactor  float64
	indoorFactor float64
}

// NewLightSensor 创建光照传感器
func NewLightSensor(id, location string, opts ...Option) *LightSensor {
	o := applyOptions(opts)
	s := &LightSensor{
		base:        newBase(id, location, o),
		cloudFactor: 1.0,
	}
	s.timeOffset = uniform(s.rng, 0, 24)
	s.indoorFactor = 1.0
	if strings.Contains(strings.ToLower(location), "indoor") {
		s.indoorFactor = 0.3
	}
	return s
}

func (s *LightSensor) Type() models.SensorType {
	return models.SensorTypeLight
}

func (s *LightSensor) Unit() string {
	return "lux"
}

// Read 产生一条光照读数
func (s *LightSensor) Read() models.SensorReading {
	return s.read(s.Type(), s.Unit(), s.generate)
}

func (s *LightSensor) generate() (float64, error) {
	currentHour := math.Mod(float64(time.Now().Hour())+s.timeOffset, 24)

	var baseLight float64
	if currentHour >= 6 && currentHour <= 18 {
		// 白天：正午达到峰值，偏离正午线性衰减
		sunAngle := math.Abs(currentHour-12) / 6
		baseLight = 1000 * (1 - sunAngle*0.8)
	} else {
		// 夜间微弱底噪
		baseLight = uniform(s.rng, 0.1, 2.0)
	}

	// 云层覆盖以 5% 概率重新抽样
	if s.rng.Float64() < 0.05 {
		s.cloudFactor = uniform(s.rng, 0.3, 1.0)
	}
	baseLight *= s.cloudFactor
	baseLight *= s.indoorFactor

	light := math.Max(0, baseLight+uniform(s.rng, -20, 20))

	return round1(light), nil
}
