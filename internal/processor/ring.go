package processor

import (
	"iot-simulator/internal/models"
)

// ring 固定容量环形缓冲，写满后覆盖最旧的读数
type ring struct {
	buf   []models.SensorReading
	head  int // 下一个写入位置
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]models.SensorReading, capacity)}
}

func (r *ring) add(reading models.SensorReading) {
	r.buf[r.head] = reading
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) len() int {
	return r.count
}

func (r *ring) clear() {
	r.head = 0
	r.count = 0
}

// snapshot 按写入顺序（最旧在前）复制当前内容
func (r *ring) snapshot() []models.SensorReading {
	out := make([]models.SensorReading, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
