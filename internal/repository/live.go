package repository

import (
	"ScheduledRecorder/pkg/logger"
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// liveView 表的实时视图：表变化时重新查询并在主分发 goroutine 上推送给订阅者。
// 连续变化会合并为一次查询。每次查询在开始前取一个递增序号，
// 订阅者只接收比上次收到的更新的结果，慢查询的旧快照不会覆盖新快照。
type liveView[T any] struct {
	r       *Repository
	name    string
	load    func(ctx context.Context) (T, error)
	mu      sync.Mutex
	subs    map[uint64]*liveSub[T]
	nextID  uint64
	seq     atomic.Uint64
	pending atomic.Bool
}

type liveSub[T any] struct {
	fn   func(T)
	last uint64
}

func newLiveView[T any](r *Repository, name string, load func(ctx context.Context) (T, error)) *liveView[T] {
	return &liveView[T]{r: r, name: name, load: load, subs: make(map[uint64]*liveSub[T])}
}

// subscribe 注册订阅者并立即推送一次当前快照，返回取消函数
func (v *liveView[T]) subscribe(fn func(T)) func() {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.subs[id] = &liveSub[T]{fn: fn}
	v.mu.Unlock()

	_ = v.r.io.Submit(func(ctx context.Context) {
		seq, val, ok := v.query(ctx)
		if !ok {
			return
		}
		v.r.main.Post(func() {
			v.mu.Lock()
			sub, ok := v.subs[id]
			fresh := ok && v.advance(sub, seq)
			v.mu.Unlock()
			if fresh {
				sub.fn(val)
			}
		})
	}, nil)

	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}

func (v *liveView[T]) refresh() {
	if !v.pending.CompareAndSwap(false, true) {
		return
	}
	err := v.r.io.Submit(func(ctx context.Context) {
		// 清标记后再查询，查询期间的新变化会触发下一轮
		v.pending.Store(false)
		seq, val, ok := v.query(ctx)
		if !ok {
			return
		}
		v.r.main.Post(func() { v.publish(seq, val) })
	}, nil)
	if err != nil {
		v.pending.Store(false)
	}
}

func (v *liveView[T]) query(ctx context.Context) (uint64, T, bool) {
	seq := v.seq.Add(1)
	val, err := v.load(ctx)
	if err != nil {
		logger.Warn("live view load failed", zap.String("view", v.name), zap.Uint64("seq", seq), zap.Error(err))
		return seq, val, false
	}
	return seq, val, true
}

// advance 调用方持有 mu
func (v *liveView[T]) advance(sub *liveSub[T], seq uint64) bool {
	if seq <= sub.last {
		return false
	}
	sub.last = seq
	return true
}

func (v *liveView[T]) publish(seq uint64, val T) {
	v.mu.Lock()
	fns := make([]func(T), 0, len(v.subs))
	for _, sub := range v.subs {
		if v.advance(sub, seq) {
			fns = append(fns, sub.fn)
		}
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(val)
	}
}
