package websocket

import (
	"ScheduledRecorder/pkg/logger"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrConnectionClosed = errors.New("connection closed")

// Message 双向消息信封
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Handler 处理客户端发来的一条消息，返回值非 nil 时回写给客户端
type Handler func(c *Connection, msg Message) *Message

// Connection 一个 WebSocket 连接：读写各一个 goroutine
type Connection struct {
	ID   string
	conn *websocket.Conn
	cfg  *Config
	send chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin:       func(r *http.Request) bool { return true },
	}
}

// Upgrade 升级连接并启动读写协程，handler 在读协程上调用
func Upgrade(w http.ResponseWriter, r *http.Request, cfg *Config, handler Handler) (*Connection, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	up := newUpgrader(cfg)
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil, err
	}
	c := &Connection{
		ID:   uuid.NewString(),
		conn: ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.MessageBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump(handler)
	return c, nil
}

// Done 连接关闭时关闭
func (c *Connection) Done() <-chan struct{} { return c.done }

// Send 非阻塞发送；缓冲区满时丢弃
func (c *Connection) Send(msgType string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		return err
	}
	return c.enqueue(raw)
}

func (c *Connection) enqueue(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- raw:
		return nil
	default:
		logger.Debug("websocket send buffer full, message dropped", zap.String("conn", c.ID))
		return nil
	}
}

// Close 关闭连接，可重复调用
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
	c.mu.Unlock()
}

func (c *Connection) readPump(handler Handler) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.Send(MessageTypeError, map[string]string{"error": "invalid message"})
			continue
		}
		if msg.Type == MessageTypePing {
			_ = c.Send(MessageTypePong, nil)
			continue
		}
		if handler == nil {
			continue
		}
		if reply := handler(c, msg); reply != nil {
			reply.Timestamp = time.Now().Unix()
			if raw, err := json.Marshal(reply); err == nil {
				_ = c.enqueue(raw)
			}
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(time.Duration(float64(c.cfg.HeartbeatInterval) * 0.9))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
