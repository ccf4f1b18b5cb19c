package sensor

import (
	"math"

	"iot-simulator/internal/models"
)

// TemperatureSensor 温度传感器
// 读数由四个分量叠加：日周期正弦、短期随机趋势、均匀噪声和缓慢漂移的基线
type TemperatureSensor struct {
	base
	baseTemperature float64
	variation       float64
	currentTrend    float64
	trendDuration   int
	dailyCyclePos   float64 // 日周期相位（角度）
}

// NewTemperatureSensor 创建温度传感器，默认基线 22.0°C、波动幅度 5.0
func NewTemperatureSensor(id, location string, opts ...Option) *TemperatureSensor {
	o := applyOptions(opts)
	s := &TemperatureSensor{
		base:            newBase(id, location, o),
		baseTemperature: o.baseTemperature,
		variation:       o.variation,
	}
	s.dailyCyclePos = s.rng.Float64() * 360
	return s
}

func (s *TemperatureSensor) Type() models.SensorType {
	return models.SensorTypeTemperature
}

func (s *TemperatureSensor) Unit() string {
	return "°C"
}

// Read 产生一条温度读数
func (s *TemperatureSensor) Read() models.SensorReading {
	return s.read(s.Type(), s.Unit(), s.generate)
}

// BaseTemperature 当前基线温度，会随读取缓慢漂移
func (s *TemperatureSensor) BaseTemperature() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseTemperature
}

func (s *TemperatureSensor) generate() (float64, error) {
	// 日周期分量，模拟昼夜温差，相位缓慢推进
	dailyVariation := math.Sin(s.dailyCyclePos*math.Pi/180) * 3
	s.dailyCyclePos += 0.5

	// 趋势到期后重新抽样，持续 5-15 个周期
	if s.trendDuration <= 0 {
		s.currentTrend = uniform(s.rng, -0.5, 0.5)
		s.trendDuration = 5 + s.rng.Intn(11)
	}
	s.trendDuration--

	temperature := s.baseTemperature + dailyVariation + s.currentTrend + uniform(s.rng, -0.3, 0.3)

	// 限制在基线允许的波动范围内
	temperature = math.Max(temperature, s.baseTemperature-s.variation)
	temperature = math.Min(temperature, s.baseTemperature+s.variation)

	// 基线缓慢漂移，形成长期变化
	s.baseTemperature += uniform(s.rng, -0.02, 0.02)

	return round1(temperature), nil
}
