package sensor

import (
	"math"

	"iot-simulator/internal/models"
)

// HumiditySensor 湿度传感器
// 在基线上叠加日周期正弦、缓变的天气因子和均匀噪声，读数夹在 [20, 80]
type HumiditySensor struct {
	base
	baseHumidity  float64
	cyclePos      float64
	weatherFactor float64
}

// NewHumiditySensor 创建湿度传感器，默认基线 45.0%
func NewHumiditySensor(id, location string, opts ...Option) *HumiditySensor {
	o := applyOptions(opts)
	s := &HumiditySensor{
		base:         newBase(id, location, o),
		baseHumidity: o.baseHumidity,
	}
	s.cyclePos = s.rng.Float64() * 360
	s.weatherFactor = uniform(s.rng, 0.8, 1.2)
	return s
}

func (s *HumiditySensor) Type() models.SensorType {
	return models.SensorTypeHumidity
}

func (s *HumiditySensor) Unit() string {
	return "%"
}

// Read 产生一条湿度读数
func (s *HumiditySensor) Read() models.SensorReading {
	return s.read(s.Type(), s.Unit(), s.generate)
}

func (s *HumiditySensor) generate() (float64, error) {
	// 日周期分量，相位每次推进 1-3 度
	cycleComponent := math.Sin(s.cyclePos*math.Pi/180) * 8
	s.cyclePos += uniform(s.rng, 1, 3)

	// 天气因子以 10% 概率重新抽样，其余时刻保持不变
	if s.rng.Float64() < 0.1 {
		s.weatherFactor = uniform(s.rng, 0.8, 1.2)
	}
	weatherComponent := (s.weatherFactor - 1) * 10

	humidity := s.baseHumidity + cycleComponent + weatherComponent + uniform(s.rng, -3, 3)

	// 湿度保持在现实范围内
	humidity = math.Max(20.0, math.Min(80.0, humidity))

	return round1(humidity), nil
}
