package handlers

import (
	"ScheduledRecorder/internal/recorder"
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/response"
	"ScheduledRecorder/pkg/websocket"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type startRequest struct {
	// MaxSeconds 为 0 表示不限时
	MaxSeconds int64 `json:"max_seconds" binding:"gte=0,lte=86400"`
}

func (h *Handlers) handleSessionStatus(c *gin.Context) {
	response.Success(c, "session", h.rec.Status())
}

func (h *Handlers) handleStartRecording(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, err.Error(), nil)
			return
		}
	}
	st, err := h.rec.StartRecording(time.Duration(req.MaxSeconds) * time.Second)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recording started", st)
}

func (h *Handlers) handleStopRecording(c *gin.Context) {
	st, err := h.rec.StopRecording()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recording stopped", st)
}

// handleSessionEvents 以 SSE 绑定为录音服务的观察者，断开时解绑
func (h *Handlers) handleSessionEvents(c *gin.Context) {
	events, detach := h.rec.Attach()
	defer detach()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.SSEvent("status", h.rec.Status())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				// 被新的观察者替换
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// handleSessionWebSocket 双向控制：推送录音事件，接收 start/stop/status 指令
func (h *Handlers) handleSessionWebSocket(c *gin.Context) {
	conn, err := websocket.Upgrade(c.Writer, c.Request, h.ws, h.sessionCommand)
	if err != nil {
		return
	}
	events, detach := h.rec.Attach()
	_ = conn.Send(websocket.MessageTypeStatus, h.rec.Status())
	go func() {
		defer detach()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					conn.Close()
					return
				}
				if err := conn.Send(websocket.MessageTypeEvent, ev); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()
}

func (h *Handlers) sessionCommand(conn *websocket.Connection, msg websocket.Message) *websocket.Message {
	var (
		st  recorder.Status
		err error
	)
	switch msg.Type {
	case websocket.MessageTypeStart:
		var req startRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				return wsError(err)
			}
		}
		st, err = h.rec.StartRecording(time.Duration(req.MaxSeconds) * time.Second)
	case websocket.MessageTypeStop:
		st, err = h.rec.StopRecording()
	case websocket.MessageTypeStatus:
		st = h.rec.Status()
	default:
		logger.Debug("unknown session command", zap.String("conn", conn.ID), zap.String("type", msg.Type))
		return wsError(errUnknownCommand)
	}
	if err != nil {
		return wsError(err)
	}
	data, _ := json.Marshal(st)
	return &websocket.Message{Type: websocket.MessageTypeStatus, Data: data}
}

var errUnknownCommand = errors.New("unknown command")

func wsError(err error) *websocket.Message {
	data, _ := json.Marshal(response.Body{Code: errors.GetCode(err), Msg: err.Error()})
	return &websocket.Message{Type: websocket.MessageTypeError, Data: data}
}
