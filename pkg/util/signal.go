package util

import (
	"sync"
	"sync/atomic"
)

// SigHandler receives the sender of a signal plus any extra parameters.
type SigHandler func(sender any, params ...any)

type sigReceiver struct {
	id      uint64
	handler SigHandler
}

// Signals is a small synchronous publish/subscribe bus keyed by event name.
// Handlers run on the emitting goroutine, in connection order.
type Signals struct {
	mu       sync.RWMutex
	nextID   atomic.Uint64
	handlers map[string][]sigReceiver
}

var globalSignals = NewSignals()

// Sig returns the process-wide bus.
func Sig() *Signals {
	return globalSignals
}

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]sigReceiver)}
}

// Connect registers handler for event and returns an id usable with Disconnect.
func (s *Signals) Connect(event string, handler SigHandler) uint64 {
	id := s.nextID.Add(1)
	s.mu.Lock()
	s.handlers[event] = append(s.handlers[event], sigReceiver{id: id, handler: handler})
	s.mu.Unlock()
	return id
}

func (s *Signals) Disconnect(event string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	receivers := s.handlers[event]
	for i, r := range receivers {
		if r.id == id {
			s.handlers[event] = append(receivers[:i:i], receivers[i+1:]...)
			return
		}
	}
}

func (s *Signals) Emit(event string, sender any, params ...any) {
	s.mu.RLock()
	receivers := append([]sigReceiver(nil), s.handlers[event]...)
	s.mu.RUnlock()
	for _, r := range receivers {
		r.handler(sender, params...)
	}
}
