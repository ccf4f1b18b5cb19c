package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 单条消息写超时
	writeWait = 10 * time.Second
	// 等待 pong 的最长时间，超时视为客户端失联
	pongWait = 60 * time.Second
	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10
	// 上行消息大小上限
	maxMessageSize = 1 << 20
	// 每个客户端的下行缓冲条数，写满视为消费过慢
	sendBufferSize = 64
)

// ErrMaxClientsReached 连接数达到配置上限
var ErrMaxClientsReached = errors.New("max clients reached")

// Hub 维护在线客户端集合并向所有客户端分发消息
// 自带独立锁，和数据处理器的锁解耦
type Hub struct {
	mu               sync.RWMutex
	logger           *zap.Logger
	maxClients       int
	clients          map[string]*client
	totalConnections int64
}

func newHub(maxClients int, logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		maxClients: maxClients,
		clients:    make(map[string]*client),
	}
}

// register 注册新客户端，超出连接上限时拒绝
func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxClients {
		return ErrMaxClientsReached
	}

	h.clients[c.id] = c
	h.totalConnections++
	h.logger.Info("Client connected",
		zap.String("client_id", c.id),
		zap.String("remote_addr", c.remoteAddr),
		zap.Int("total", len(h.clients)),
	)
	return nil
}

// unregister 移除客户端并关闭其发送通道，可重复调用
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.logger.Info("Client disconnected",
		zap.String("client_id", c.id),
		zap.Int("total", len(h.clients)),
	)
}

// broadcast 向所有在线客户端投递一条消息
// 缓冲写满的客户端视为失联并被移除，不影响其余客户端
func (h *Hub) broadcast(message []byte) {
	h.mu.RLock()
	var stalled []*client
	for _, c := range h.clients {
		if !c.enqueue(message) {
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.logger.Warn("Client send buffer full, removing", zap.String("client_id", c.id))
		h.unregister(c)
	}
}

// closeAll 移除全部客户端，服务停止时调用
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) connectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) totalClientConnections() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConnections
}

// client 单个 WebSocket 连接及其下行缓冲
type client struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	send       chan []byte
}

// enqueue 非阻塞投递，缓冲写满返回 false
func (c *client) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// writePump 将缓冲中的消息逐条写到连接上，并按周期发送 ping
// 每条读数独立成一条 WebSocket 消息，不做合帧
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 发送通道已被 unregister 关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取上行命令并交给分发器，连接关闭或出错时注销客户端
func (c *client) readPump(s *BroadcastServer) {
	defer func() {
		s.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Client read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		s.handleCommand(c, message)
	}
}
