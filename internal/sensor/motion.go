package sensor

import (
	"time"

	"iot-simulator/internal/models"
)

// MotionSensor 运动传感器，读数只有 1.0（检测到）和 0.0 两种
// 状态机：检测命中后连续输出 1.0 若干周期，随后进入冷却期抑制新的检测；
// 检测概率随小时活动模式缩放（白天高、夜间低）
type MotionSensor struct {
	base
	detectionProbability float64
	motionActive         bool
	stateDuration        int
	cooldownTimer        int
	activityPattern      [24]float64
}

// NewMotionSensor 创建运动传感器，默认检测概率 0.15
func NewMotionSensor(id, location string, opts ...Option) *MotionSensor {
	o := applyOptions(opts)
	s := &MotionSensor{
		base:                 newBase(id, location, o),
		detectionProbability: o.detectionProbability,
	}
	// 白天（8-22 点）活动概率放大，夜间压低
	for hour := 0; hour < 24; hour++ {
		if hour >= 8 && hour <= 22 {
			s.activityPattern[hour] = 1.5
		} else {
			s.activityPattern[hour] = 0.3
		}
	}
	return s
}

func (s *MotionSensor) Type() models.SensorType {
	return models.SensorTypeMotion
}

func (s *MotionSensor) Unit() string {
	return "detected"
}

// Read 产生一条运动检测读数
func (s *MotionSensor) Read() models.SensorReading {
	return s.read(s.Type(), s.Unit(), s.generate)
}

func (s *MotionSensor) generate() (float64, error) {
	// 冷却期内不检测
	if s.cooldownTimer > 0 {
		s.cooldownTimer--
		return 0.0, nil
	}

	// 检测持续期间继续输出 1.0，结束后进入冷却
	if s.motionActive && s.stateDuration > 0 {
		s.stateDuration--
		if s.stateDuration == 0 {
			s.motionActive = false
			s.cooldownTimer = 3 + s.rng.Intn(6)
		}
		return 1.0, nil
	}

	// 按小时活动模式调整检测概率
	hour := time.Now().Hour()
	adjustedProbability := s.detectionProbability * s.activityPattern[hour]

	if s.rng.Float64() < adjustedProbability {
		s.motionActive = true
		s.stateDuration = 2 + s.rng.Intn(7)
		return 1.0, nil
	}

	return 0.0, nil
}
