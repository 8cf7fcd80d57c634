package executor

import (
	"ScheduledRecorder/pkg/logger"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("executor closed")

// DiskIO runs blocking work on at most n goroutines at once.
type DiskIO struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDiskIO(n int64) *DiskIO {
	if n <= 0 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DiskIO{sem: semaphore.NewWeighted(n), ctx: ctx, cancel: cancel}
}

// Submit queues fn. It never blocks the caller; fn waits for a free slot.
// dropped, if not nil, runs instead of fn when Close discards the task
// before it got a slot.
func (d *DiskIO) Submit(fn func(ctx context.Context), dropped func()) error {
	if d.ctx.Err() != nil {
		return ErrClosed
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			if dropped != nil {
				dropped()
			}
			return
		}
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("disk io task panicked", zap.Any("panic", r))
			}
		}()
		fn(d.ctx)
	}()
	return nil
}

// Close stops accepting work, drops queued tasks and waits for running ones.
func (d *DiskIO) Close() {
	d.cancel()
	d.wg.Wait()
}

// Main is a single dispatcher goroutine. Callbacks posted to it run one at a
// time in post order.
type Main struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewMain() *Main {
	m := &Main{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go m.loop()
	return m
}

func (m *Main) Post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *Main) loop() {
	defer close(m.done)
	for range m.wake {
		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				closed := m.closed
				m.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()
			m.run(fn)
		}
	}
}

func (m *Main) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("main callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// Close drains already posted callbacks and stops the dispatcher.
func (m *Main) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	<-m.done
}
