package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// DefaultCheckInterval 墙钟复查周期。单调时钟在系统挂起期间不走，
// 只靠计时器时唤醒会推迟挂起的时长，复查按墙钟补触发。
const DefaultCheckInterval = 30 * time.Second

// Alarm 单次闹钟：同一时刻至多挂一个待触发任务，重新 Arm 会替换旧任务
type Alarm struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	halt   chan struct{}
	at     time.Time
	seq    uint64
	now    func() time.Time
	check  time.Duration
}

func NewAlarm() *Alarm {
	ctx, cancel := context.WithCancel(context.Background())
	return &Alarm{ctx: ctx, cancel: cancel, now: time.Now, check: DefaultCheckInterval}
}

// WithClock 替换时钟，测试用
func (a *Alarm) WithClock(now func() time.Time) *Alarm {
	a.now = now
	return a
}

// WithCheckInterval 设置墙钟复查周期，d <= 0 关闭复查
func (a *Alarm) WithCheckInterval(d time.Duration) *Alarm {
	a.check = d
	return a
}

// Arm fires job once at the given wall-clock time, replacing any pending job.
// A time already in the past fires immediately.
func (a *Alarm) Arm(at time.Time, job Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.Err() != nil {
		return
	}
	a.stopLocked()
	a.seq++
	seq := a.seq
	// 去掉单调时钟读数，比较只看墙钟
	at = at.Round(0)
	a.at = at
	d := at.Sub(a.now())
	if d < 0 {
		d = 0
	}
	a.timer = time.AfterFunc(d, func() { a.fire(seq, job) })
	if a.check > 0 {
		a.halt = make(chan struct{})
		go a.watch(seq, at, a.check, a.halt, job)
	}
}

func (a *Alarm) watch(seq uint64, at time.Time, every time.Duration, halt <-chan struct{}, job Job) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-halt:
			return
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if !a.now().Round(0).Before(at) {
				a.fire(seq, job)
				return
			}
		}
	}
}

// fire 计时器和墙钟复查谁先到谁触发，另一方按 seq 作废
func (a *Alarm) fire(seq uint64, job Job) {
	a.mu.Lock()
	if seq != a.seq || a.timer == nil {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	a.mu.Unlock()
	job.Run(a.ctx)
}

// Cancel 取消待触发任务，可重复调用
func (a *Alarm) Cancel() {
	a.mu.Lock()
	a.stopLocked()
	a.mu.Unlock()
}

func (a *Alarm) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.halt != nil {
		close(a.halt)
		a.halt = nil
	}
	a.at = time.Time{}
	a.seq++
}

// Pending 返回已挂起任务的触发时间
func (a *Alarm) Pending() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, a.timer != nil
}

// Stop 取消任务并拒绝之后的 Arm
func (a *Alarm) Stop() {
	a.mu.Lock()
	a.stopLocked()
	a.cancel()
	a.mu.Unlock()
}
