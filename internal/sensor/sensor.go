package sensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"iot-simulator/internal/models"
)

// 工厂可识别的传感器类型名
const (
	TypeTemperature = "temperature"
	TypeHumidity    = "humidity"
	TypeMotion      = "motion"
	TypeLight       = "light"
)

// ErrInvalidSensorType 工厂收到未知类型名
var ErrInvalidSensorType = errors.New("invalid sensor type")

// Sensor 传感器统一接口
// Read 产生下一条读数并推进内部生成状态；
// 其余方法暴露标识与开关，供花名册和 toggle 命令使用
type Sensor interface {
	Read() models.SensorReading
	Type() models.SensorType
	Unit() string
	ID() string
	Name() string
	Location() string
	IsActive() bool
	SetActive(active bool)
	ReadingCount() int64
}

// base 各传感器共享的标识、开关与计数状态
// 锁保护开关、计数和生成状态：Read 来自采集循环，
// SetActive 来自客户端命令路径，二者并发
type base struct {
	mu       sync.RWMutex
	id       string
	location string
	name     string
	active   bool
	count    int64
	lastRead time.Time
	rng      *rand.Rand
	metadata map[string]any
}

func newBase(id, location string, o options) base {
	rng := o.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	name := o.name
	if name == "" {
		name = fmt.Sprintf("Sensor %s", id)
	}
	return base{
		id:       id,
		location: location,
		name:     name,
		active:   true,
		rng:      rng,
		metadata: map[string]any{
			"created_at":         time.Now().Format(time.RFC3339),
			"total_readings":     int64(0),
			"calibration_status": "calibrated",
		},
	}
}

// read 传感器读取的公共流程：
// 未激活 → inactive 读数，不推进计数；生成出错 → error 读数，不推进计数；
// 成功 → 计数加一并返回 active 读数
func (b *base) read(typ models.SensorType, unit string, generate func() (float64, error)) models.SensorReading {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return models.SensorReading{
			SensorID:     b.id,
			SensorType:   typ,
			Value:        0,
			Unit:         unit,
			Status:       models.StatusInactive,
			Timestamp:    time.Now(),
			Location:     b.location,
			Name:         b.name,
			ReadingCount: b.count,
		}
	}

	value, err := generate()
	if err != nil {
		b.metadata["last_error"] = err.Error()
		return models.SensorReading{
			SensorID:     b.id,
			SensorType:   typ,
			Value:        0,
			Unit:         unit,
			Status:       models.StatusError,
			Timestamp:    time.Now(),
			Location:     b.location,
			Name:         b.name,
			ReadingCount: b.count,
			Metadata:     map[string]any{"error": err.Error()},
		}
	}

	b.lastRead = time.Now()
	b.count++
	b.metadata["total_readings"] = b.count

	return models.SensorReading{
		SensorID:     b.id,
		SensorType:   typ,
		Value:        value,
		Unit:         unit,
		Status:       models.StatusActive,
		Timestamp:    time.Now(),
		Location:     b.location,
		Name:         b.name,
		ReadingCount: b.count,
		Metadata:     copyMetadata(b.metadata),
	}
}

func (b *base) ID() string {
	return b.id
}

func (b *base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func (b *base) Location() string {
	return b.location
}

func (b *base) IsActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *base) SetActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = active
}

func (b *base) ReadingCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// options 工厂的可选参数
type options struct {
	name                 string
	baseTemperature      float64
	variation            float64
	baseHumidity         float64
	detectionProbability float64
	rng                  *rand.Rand
}

// Option 设置传感器的可选参数
type Option func(*options)

// WithName 设置展示名称
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithBaseTemperature 设置温度基线（°C）
func WithBaseTemperature(base float64) Option {
	return func(o *options) { o.baseTemperature = base }
}

// WithVariation 设置温度允许的最大波动幅度
func WithVariation(variation float64) Option {
	return func(o *options) { o.variation = variation }
}

// WithBaseHumidity 设置湿度基线（%）
func WithBaseHumidity(base float64) Option {
	return func(o *options) { o.baseHumidity = base }
}

// WithDetectionProbability 设置运动检测基础概率
func WithDetectionProbability(p float64) Option {
	return func(o *options) { o.detectionProbability = p }
}

// WithRand 指定随机源，用于可复现的模拟
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

func applyOptions(opts []Option) options {
	o := options{
		baseTemperature:      22.0,
		variation:            5.0,
		baseHumidity:         45.0,
		detectionProbability: 0.15,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New 按类型名创建传感器实例，未知类型返回 ErrInvalidSensorType
func New(sensorType, id, location string, opts ...Option) (Sensor, error) {
	switch strings.ToLower(sensorType) {
	case TypeTemperature:
		return NewTemperatureSensor(id, location, opts...), nil
	case TypeHumidity:
		return NewHumiditySensor(id, location, opts...), nil
	case TypeMotion:
		return NewMotionSensor(id, location, opts...), nil
	case TypeLight:
		return NewLightSensor(id, location, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSensorType, sensorType)
	}
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func copyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
