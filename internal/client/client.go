package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"iot-simulator/internal/models"
)

const (
	// 写超时与单条消息大小上限，与服务端保持一致
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20

	defaultConnectTimeout = 10 * time.Second
)

// ErrNotConnected 在未建立连接时调用命令方法返回
var ErrNotConnected = errors.New("client is not connected")

// Options 客户端连接选项
type Options struct {
	// URL 服务端 WebSocket 地址，例如 ws://localhost:8765/ws
	URL string
	// Reconnect 读取失败后是否自动重连
	Reconnect bool
	// ConnectTimeout 单次握手超时，零值使用默认 10s
	ConnectTimeout time.Duration
	// MaxElapsedTime 重试放弃时间，零值表示一直重试直到 ctx 取消
	MaxElapsedTime time.Duration
	// Logger 为空时使用 zap.NewNop()
	Logger *zap.Logger
}

// Handler 下行消息回调集合，未设置的回调对应的消息被跳过
type Handler struct {
	OnSensorData    func(models.SensorDataMessage)
	OnSensorList    func(models.SensorListMessage)
	OnSensorHistory func(models.SensorHistoryMessage)
	OnStatistics    func(models.StatisticsMessage)
	OnSystemInfo    func(models.SystemInfoMessage)
	OnAlerts        func(models.AlertsMessage)
}

// Client 传感器服务端的 WebSocket 客户端
type Client struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient 创建客户端，不建立连接
func NewClient(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		opts:   opts,
		logger: logger,
	}
}

// Connect 按指数退避重试建立连接，直到成功、ctx 取消或超过 MaxElapsedTime
func (c *Client) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = c.opts.MaxElapsedTime // 0 表示不放弃

	notify := func(err error, next time.Duration) {
		c.logger.Warn("Connection attempt failed, will retry",
			zap.String("url", c.opts.URL),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	operation := func() error {
		return c.dial(ctx)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.opts.URL, err)
	}

	c.logger.Info("Connected to sensor server", zap.String("url", c.opts.URL))
	return nil
}

// dial 执行单次握手并在成功后替换当前连接
func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return backoff.Permanent(errors.New("client closed during connect"))
	}
	if c.conn != nil {
		_ = c.conn.Close() // 重连时释放旧连接
	}
	c.conn = conn
	return nil
}

// Listen 阻塞读取下行消息并按类型分发，直到 Close、读错误或 ctx 取消
// Reconnect 开启时读错误触发重连而不是返回
func (c *Client) Listen(ctx context.Context, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.closeCurrentConn()
		case <-done:
		}
	}()

	for {
		conn := c.currentConn()
		if conn == nil {
			return ErrNotConnected
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !c.opts.Reconnect {
				return fmt.Errorf("failed to read message: %w", err)
			}
			c.logger.Warn("Connection lost, reconnecting", zap.Error(err))
			if err := c.Connect(ctx); err != nil {
				return err
			}
			continue
		}

		c.dispatch(raw, h)
	}
}

// dispatch 按消息类型解码并调用对应回调
func (c *Client) dispatch(raw []byte, h Handler) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("Invalid message received", zap.Error(err))
		return
	}

	switch env.Type {
	case models.MessageTypeSensorData:
		if h.OnSensorData != nil {
			var msg models.SensorDataMessage
			if c.decode(raw, env.Type, &msg) {
				h.OnSensorData(msg)
			}
		}
	case models.MessageTypeSensorList:
		if h.OnSensorList != nil {
			var msg models.SensorListMessage
			if c.decode(raw, env.Type, &msg) {
				h.OnSensorList(msg)
			}
		}
	case models.MessageTypeSensorHistory:
		if h.OnSensorHistory != nil {
			var msg models.SensorHistoryMessage
			if c.decode(raw, env.Type, &msg) {
				h.OnSensorHistory(msg)
			}
		}
	case models.MessageTypeStatistics:
		if h.OnStatistics != nil {
			var msg models.StatisticsMessage
			if c.decode(raw, env.Type, &msg) {
				h.OnStatistics(msg)
			}
		}
	case models.MessageTypeSystemInfo:
		if h.OnSystemInfo != nil {
			var msg models.SystemInfoMessage
			if c.decode(raw, env.Type, &msg) {
				h.OnSystemInfo(msg)
			}
		}
	case models.MessageTypeAlerts:
		if h.OnAlerts != nil {
			var msg models.AlertsMessage
			if c.decode(raw, env.Type, &msg) {
				h.OnAlerts(msg)
			}
		}
	default:
		c.logger.Debug("Unhandled message type", zap.String("type", env.Type))
	}
}

func (c *Client) decode(raw []byte, msgType string, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn("Failed to decode message",
			zap.String("type", msgType),
			zap.Error(err),
		)
		return false
	}
	return true
}

// RequestSensors 请求传感器花名册
func (c *Client) RequestSensors() error {
	return c.send(models.ClientCommand{Command: models.CommandGetSensors})
}

// RequestHistory 请求单个传感器的历史读数，limit <= 0 使用服务端默认值
func (c *Client) RequestHistory(sensorID string, limit int) error {
	cmd := models.ClientCommand{
		Command:  models.CommandGetHistory,
		SensorID: sensorID,
	}
	if limit > 0 {
		cmd.Limit = &limit
	}
	return c.send(cmd)
}

// RequestStatistics 请求统计，sensorID 为空表示全量查询
func (c *Client) RequestStatistics(sensorID string) error {
	return c.send(models.ClientCommand{
		Command:  models.CommandGetStatistics,
		SensorID: sensorID,
	})
}

// ToggleSensor 切换传感器启停状态
func (c *Client) ToggleSensor(sensorID string) error {
	return c.send(models.ClientCommand{
		Command:  models.CommandToggleSensor,
		SensorID: sensorID,
	})
}

// RequestSystemInfo 请求系统信息
func (c *Client) RequestSystemInfo() error {
	return c.send(models.ClientCommand{Command: models.CommandGetSystemInfo})
}

// RequestAlerts 请求告警列表，sensorID 为空表示不过滤，minutes <= 0 使用服务端默认值
func (c *Client) RequestAlerts(sensorID string, minutes int, activeOnly bool) error {
	cmd := models.ClientCommand{
		Command:    models.CommandGetAlerts,
		SensorID:   sensorID,
		ActiveOnly: &activeOnly,
	}
	if minutes > 0 {
		cmd.Minutes = &minutes
	}
	return c.send(cmd)
}

// AcknowledgeAlert 确认告警
func (c *Client) AcknowledgeAlert(alertID, acknowledgedBy string) error {
	return c.send(models.ClientCommand{
		Command:        models.CommandAcknowledgeAlert,
		AlertID:        alertID,
		AcknowledgedBy: acknowledgedBy,
	})
}

// ResolveAlert 解除告警
func (c *Client) ResolveAlert(alertID string) error {
	return c.send(models.ClientCommand{
		Command: models.CommandResolveAlert,
		AlertID: alertID,
	})
}

// send 填充时间戳并序列化发送命令，互斥保证同一时刻只有一个写者
func (c *Client) send(cmd models.ClientCommand) error {
	cmd.Timestamp = time.Now()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", cmd.Command, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrNotConnected
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd.Command, err)
	}
	return nil
}

// Close 发送关闭帧并关闭连接，幂等
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}

	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) closeCurrentConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
