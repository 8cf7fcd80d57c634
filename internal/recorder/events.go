package recorder

import (
	"ScheduledRecorder/pkg/logger"
	"time"

	"go.uber.org/zap"
)

type EventKind string

const (
	EventStarted   EventKind = "started"
	EventTick      EventKind = "tick"
	EventAmplitude EventKind = "amplitude"
	EventStopped   EventKind = "stopped"
)

// Event 推送给观察者的录音事件
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Seconds   int       `json:"seconds,omitempty"`
	Level     int       `json:"level,omitempty"`
	Path      string    `json:"path,omitempty"`
	At        time.Time `json:"at"`
}

type observer struct {
	id uint64
	ch chan Event
}

func newObserver(id uint64, buffer int) *observer {
	return &observer{id: id, ch: make(chan Event, buffer)}
}

// send 不阻塞。缓冲满时 tick 和 amplitude 被丢弃，
// started 和 stopped 会挤掉最早的一条排队事件。
func (o *observer) send(ev Event) {
	for {
		select {
		case o.ch <- ev:
			return
		default:
		}
		if !ev.terminal() {
			logger.Debug("observer buffer full, event dropped", zap.String("kind", string(ev.Kind)))
			return
		}
		select {
		case old := <-o.ch:
			logger.Debug("observer buffer full, event evicted", zap.String("kind", string(old.Kind)))
		default:
		}
	}
}

func (ev Event) terminal() bool {
	return ev.Kind == EventStarted || ev.Kind == EventStopped
}

func (o *observer) close() { close(o.ch) }
