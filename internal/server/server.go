package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"iot-simulator/internal/config"
	"iot-simulator/internal/models"
	"iot-simulator/internal/processor"
	"iot-simulator/internal/sensor"
)

// ReadingSink 周期采集产出读数的额外消费方（MQTT 桥接等），
// 在广播之后调用，实现方不得长时间阻塞
type ReadingSink interface {
	PublishReading(reading models.SensorReading)
}

// BroadcastServer 传感器广播服务：
// 管理 WebSocket 客户端集合、运行周期采集循环、处理客户端命令，
// 并暴露健康检查与数据导出两个 HTTP 端点
type BroadcastServer struct {
	cfg       *config.Config
	logger    *zap.Logger
	processor *processor.DataProcessor
	hub       *Hub

	sensors map[string]sensor.Sensor
	roster  []string // 花名册展示顺序

	sinks []ReadingSink

	httpServer *http.Server
	upgrader   websocket.Upgrader
	startTime  time.Time
	cancel     context.CancelFunc
	loopDone   chan struct{}
}

// NewBroadcastServer 创建广播服务，sensors 的顺序决定花名册顺序
func NewBroadcastServer(cfg *config.Config, proc *processor.DataProcessor, sensors []sensor.Sensor, logger *zap.Logger) *BroadcastServer {
	s := &BroadcastServer{
		cfg:       cfg,
		logger:    logger,
		processor: proc,
		hub:       newHub(cfg.Server.MaxClients, logger),
		sensors:   make(map[string]sensor.Sensor, len(sensors)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 跨域策略由 HTTP 层的 CORS 中间件统一控制
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
		loopDone:  make(chan struct{}),
	}

	for _, sn := range sensors {
		s.sensors[sn.ID()] = sn
		s.roster = append(s.roster, sn.ID())
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// AddReadingSink 注册一个读数消费方，必须在 Start 之前调用
func (s *BroadcastServer) AddReadingSink(sink ReadingSink) {
	s.sinks = append(s.sinks, sink)
}

// Handler 返回带 CORS 的完整 HTTP 处理器
func (s *BroadcastServer) Handler() http.Handler {
	router := NewRouter(s.logger)
	router.RegisterRoutes(s)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(router)
}

// Start 绑定监听地址、启动采集循环并开始服务，阻塞到 Stop 被调用
// 绑定失败直接返回错误，不启动任何后台任务
func (s *BroadcastServer) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.generationLoop(ctx)

	s.logger.Info("WebSocket server listening",
		zap.String("addr", s.cfg.Server.Addr()),
		zap.Int("max_clients", s.cfg.Server.MaxClients),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop 停止采集循环、断开全部客户端并关闭 HTTP 服务
func (s *BroadcastServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server")

	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.loopDone:
		case <-ctx.Done():
		}
	}

	s.hub.closeAll()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	s.logger.Info("WebSocket server stopped")
	return nil
}

// generationLoop 周期采集循环，单次 tick 的故障只记录并短暂停顿，循环本身不退出
func (s *BroadcastServer) generationLoop(ctx context.Context) {
	defer close(s.loopDone)

	interval := s.cfg.Server.SensorReadInterval
	s.logger.Info("Starting sensor data generation loop", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sensor data generation loop stopped")
			return
		case <-ticker.C:
			if err := s.runTick(); err != nil {
				s.logger.Error("Error in sensor data loop", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// runTick 读取所有激活的传感器并逐条入库、广播
// 循环必须在任何单 tick 故障后存活，panic 也转成错误返回
func (s *BroadcastServer) runTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sensor data loop panic: %v", r)
		}
	}()

	for _, id := range s.roster {
		sn := s.sensors[id]
		if !sn.IsActive() {
			continue
		}
		reading := sn.Read()
		s.publishReading(reading)
	}
	return nil
}

// publishReading 将一条读数入库并广播给全部客户端和已注册的消费方
// 没有客户端在线时仍然入库
func (s *BroadcastServer) publishReading(reading models.SensorReading) {
	if err := s.processor.Store(reading); err != nil {
		s.logger.Error("Failed to store reading",
			zap.String("sensor_id", reading.SensorID),
			zap.Error(err),
		)
	}

	message, err := json.Marshal(models.SensorDataMessage{
		Type:      models.MessageTypeSensorData,
		Data:      reading,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Error("Failed to marshal sensor data", zap.Error(err))
		return
	}
	s.hub.broadcast(message)

	for _, sink := range s.sinks {
		sink.PublishReading(reading)
	}
}

// handleWS 将 HTTP 连接升级为 WebSocket 并接入 Hub
func (s *BroadcastServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:         uuid.New().String(),
		remoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
	}

	if err := s.hub.register(c); err != nil {
		s.logger.Warn("Rejecting client", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "max clients reached"),
			time.Now().Add(writeWait),
		)
		conn.Close()
		return
	}

	go c.writePump()

	// 新客户端先收到一份完整花名册
	s.sendSensorList(c)

	c.readPump(s)
}

// handleCommand 解析并分发一条客户端命令
// 非法 JSON 和未知命令只记录日志，连接保持打开
func (s *BroadcastServer) handleCommand(c *client, raw []byte) {
	var cmd models.ClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.logger.Error("Invalid JSON received from client",
			zap.String("client_id", c.id),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("Received command",
		zap.String("client_id", c.id),
		zap.String("command", cmd.Command),
	)

	switch cmd.Command {
	case models.CommandGetSensors:
		s.sendSensorList(c)
	case models.CommandGetHistory:
		s.handleGetHistory(c, cmd)
	case models.CommandGetStatistics:
		s.handleGetStatistics(c, cmd)
	case models.CommandToggleSensor:
		s.handleToggleSensor(cmd)
	case models.CommandGetSystemInfo:
		s.handleGetSystemInfo(c)
	case models.CommandGetAlerts:
		s.handleGetAlerts(c, cmd)
	case models.CommandAcknowledgeAlert:
		s.handleAcknowledgeAlert(c, cmd)
	case models.CommandResolveAlert:
		s.handleResolveAlert(c, cmd)
	default:
		s.logger.Warn("Unknown command received", zap.String("command", cmd.Command))
	}
}

func (s *BroadcastServer) handleGetHistory(c *client, cmd models.ClientCommand) {
	if _, ok := s.sensors[cmd.SensorID]; !ok {
		s.logger.Warn("History requested for unknown sensor", zap.String("sensor_id", cmd.SensorID))
		return
	}

	limit := 50
	if cmd.Limit != nil {
		limit = *cmd.Limit
	}

	history := s.processor.History(cmd.SensorID, limit)
	s.sendTo(c, models.SensorHistoryMessage{
		Type:          models.MessageTypeSensorHistory,
		SensorID:      cmd.SensorID,
		History:       history,
		TotalReadings: len(history),
	})
}

func (s *BroadcastServer) handleGetStatistics(c *client, cmd models.ClientCommand) {
	msg := models.StatisticsMessage{Type: models.MessageTypeStatistics}

	if cmd.SensorID != "" {
		sensorID := cmd.SensorID
		msg.SensorID = &sensorID
		msg.Statistics = statsPayload(s.processor.Statistics(sensorID, true))
	} else {
		all := s.processor.AllStatistics()
		payload := make(map[string]any, len(all))
		for id, stats := range all {
			payload[id] = statsPayload(stats)
		}
		msg.Statistics = payload
	}

	s.sendTo(c, msg)
}

// statsPayload 无统计结果时序列化为空对象而不是 null
func statsPayload(stats *models.SensorStatistics) any {
	if stats == nil {
		return struct{}{}
	}
	return stats
}

func (s *BroadcastServer) handleToggleSensor(cmd models.ClientCommand) {
	sn, ok := s.sensors[cmd.SensorID]
	if !ok {
		s.logger.Warn("Toggle requested for unknown sensor", zap.String("sensor_id", cmd.SensorID))
		return
	}

	sn.SetActive(!sn.IsActive())

	status := "deactivated"
	if sn.IsActive() {
		status = "activated"
	}
	s.logger.Info("Sensor toggled",
		zap.String("sensor_id", cmd.SensorID),
		zap.String("status", status),
	)

	s.broadcastSensorList()
}

func (s *BroadcastServer) handleGetSystemInfo(c *client) {
	s.sendTo(c, models.SystemInfoMessage{
		Type: models.MessageTypeSystemInfo,
		Info: models.ServerSystemInfo{
			SystemInfo:             s.processor.SystemInfo(),
			ServerUptime:           s.startTime,
			ConnectedClients:       s.hub.connectedClients(),
			TotalClientConnections: s.hub.totalClientConnections(),
		},
	})
}

func (s *BroadcastServer) handleGetAlerts(c *client, cmd models.ClientCommand) {
	minutes := 60
	if cmd.Minutes != nil {
		minutes = *cmd.Minutes
	}
	activeOnly := false
	if cmd.ActiveOnly != nil {
		activeOnly = *cmd.ActiveOnly
	}

	filters := processor.AlertFilters{Minutes: &minutes, ActiveOnly: &activeOnly}
	if cmd.SensorID != "" {
		filters.SensorID = &cmd.SensorID
	}

	alerts := s.processor.Alerts(filters)
	s.sendTo(c, models.AlertsMessage{
		Type:   models.MessageTypeAlerts,
		Alerts: alerts,
		Count:  len(alerts),
	})
}

func (s *BroadcastServer) handleAcknowledgeAlert(c *client, cmd models.ClientCommand) {
	if err := s.processor.AcknowledgeAlert(cmd.AlertID, cmd.AcknowledgedBy); err != nil {
		s.logger.Warn("Acknowledge requested for unknown alert", zap.String("alert_id", cmd.AlertID))
		return
	}
	s.sendAlertSnapshot(c)
}

func (s *BroadcastServer) handleResolveAlert(c *client, cmd models.ClientCommand) {
	if err := s.processor.ResolveAlert(cmd.AlertID); err != nil {
		s.logger.Warn("Resolve requested for unknown alert", zap.String("alert_id", cmd.AlertID))
		return
	}
	s.sendAlertSnapshot(c)
}

// sendAlertSnapshot 告警状态变更后把完整告警列表回给请求方
func (s *BroadcastServer) sendAlertSnapshot(c *client) {
	alerts := s.processor.Alerts(processor.AlertFilters{})
	s.sendTo(c, models.AlertsMessage{
		Type:   models.MessageTypeAlerts,
		Alerts: alerts,
		Count:  len(alerts),
	})
}

// buildSensorList 按花名册顺序汇总所有传感器的当前状态
func (s *BroadcastServer) buildSensorList() models.SensorListMessage {
	summaries := make([]models.SensorSummary, 0, len(s.roster))
	for _, id := range s.roster {
		sn := s.sensors[id]
		status := models.StatusInactive
		if sn.IsActive() {
			status = models.StatusActive
		}
		summaries = append(summaries, models.SensorSummary{
			ID:           sn.ID(),
			Name:         sn.Name(),
			Location:     sn.Location(),
			SensorType:   sn.Type(),
			Status:       status,
			Unit:         sn.Unit(),
			ReadingCount: sn.ReadingCount(),
		})
	}

	return models.SensorListMessage{
		Type:      models.MessageTypeSensorList,
		Sensors:   summaries,
		Timestamp: time.Now(),
		ServerInfo: models.ServerInfo{
			TotalSensors:     len(s.sensors),
			ConnectedClients: s.hub.connectedClients(),
		},
	}
}

func (s *BroadcastServer) sendSensorList(c *client) {
	s.sendTo(c, s.buildSensorList())
}

func (s *BroadcastServer) broadcastSensorList() {
	message, err := json.Marshal(s.buildSensorList())
	if err != nil {
		s.logger.Error("Failed to marshal sensor list", zap.Error(err))
		return
	}
	s.hub.broadcast(message)
}

// sendTo 序列化并投递一条消息给单个客户端，缓冲写满时移除该客户端
func (s *BroadcastServer) sendTo(c *client, v any) {
	message, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	if !c.enqueue(message) {
		s.logger.Warn("Client send buffer full, removing", zap.String("client_id", c.id))
		s.hub.unregister(c)
	}
}
