package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Client struct {
	id     string
	topics map[string]bool
	ch     chan string
	done   chan struct{}
}

// Hub 按主题分发 SSE 消息，慢客户端直接丢弃消息
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	topics   map[string]map[string]bool // topic -> clientID set
	interval time.Duration
	retryMs  int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{clients: make(map[string]*Client), topics: make(map[string]map[string]bool), interval: interval, retryMs: 5000}
}

func (h *Hub) AddClient(id string, topics ...string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		h.removeLocked(old)
	}
	c := &Client{id: id, topics: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	for _, t := range topics {
		c.topics[t] = true
		if h.topics[t] == nil {
			h.topics[t] = make(map[string]bool)
		}
		h.topics[t][id] = true
	}
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client) {
	close(c.done)
	for t := range c.topics {
		delete(h.topics[t], c.id)
	}
	delete(h.clients, c.id)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish 向订阅了 topic 的客户端发送一条命名事件
func (h *Hub) Publish(topic, event string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	msg := formatEvent(event, string(b))
	h.mu.RLock()
	for id := range h.topics[topic] {
		if c := h.clients[id]; c != nil {
			select {
			case c.ch <- msg:
			default:
			}
		}
	}
	h.mu.RUnlock()
}

func formatEvent(event, data string) string {
	if event == "" {
		return fmt.Sprintf("data: %s\n\n", data)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

// Serve 保持连接直到客户端断开。订阅主题来自 ?topics=a,b，
// initial 在订阅后立即发送，用于推送当前快照。
func (h *Hub) Serve(c *gin.Context, clientID string, initial func(send func(event string, v interface{}))) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)

	var topics []string
	for _, t := range strings.Split(c.Query("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	client := h.AddClient(clientID, topics...)
	defer h.RemoveClient(clientID)

	if initial != nil {
		initial(func(event string, v interface{}) {
			b, err := json.Marshal(v)
			if err != nil {
				return
			}
			io.WriteString(c.Writer, formatEvent(event, string(b)))
		})
	}
	flusher.Flush()

	ping := time.NewTicker(h.interval)
	defer ping.Stop()
	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			io.WriteString(c.Writer, msg)
			flusher.Flush()
		}
	}
}
