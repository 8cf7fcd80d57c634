package scheduling

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/metrics"
	"ScheduledRecorder/pkg/scheduler"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultGrace = 5 * time.Minute

var ErrClosed = errors.WithCode(errors.CodeServiceClosed, "scheduling service closed")

// Options 调度服务依赖
type Options struct {
	Repo *repository.Repository
	// Fire 闹钟到点时调用，通常是录音服务的无界面启动入口
	Fire    func(ctx context.Context) error
	Alarm   *scheduler.Alarm
	Grace   time.Duration
	Metrics *metrics.Metrics
	Now     func() time.Time
	// QueueSize 触发队列长度，队列满时新的触发被合并
	QueueSize int
}

type trigger struct {
	reason string
	done   chan error
}

// Service 单 worker 顺序处理触发：取消闹钟、清理过期窗口、为最早窗口布置闹钟
type Service struct {
	opts  Options
	queue chan trigger

	mu     sync.Mutex
	closed bool

	stopped chan struct{}
}

func New(opts Options) *Service {
	if opts.Alarm == nil {
		opts.Alarm = scheduler.NewAlarm()
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	s := &Service{
		opts:    opts,
		queue:   make(chan trigger, opts.QueueSize),
		stopped: make(chan struct{}),
	}
	go s.worker()
	return s
}

// Trigger 请求一次清理并重新布置，不等待结果
func (s *Service) Trigger(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- trigger{reason: reason}:
	default:
		// 队列里已有待处理的触发，它会看到最新的表
		logger.Debug("schedule trigger coalesced", zap.String("reason", reason))
	}
}

// TriggerAndWait 排队一次触发并等待其完成
func (s *Service) TriggerAndWait(ctx context.Context, reason string) error {
	t := trigger{reason: reason, done: make(chan error, 1)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	select {
	case s.queue <- t:
		s.mu.Unlock()
	case <-ctx.Done():
		s.mu.Unlock()
		return ctx.Err()
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel 取消已布置的唤醒，没有时为空操作
func (s *Service) Cancel() {
	s.opts.Alarm.Cancel()
	s.opts.Metrics.AlarmArmed(time.Time{})
}

// Pending 当前布置的唤醒时间
func (s *Service) Pending() (time.Time, bool) {
	return s.opts.Alarm.Pending()
}

// Close 停止 worker 并撤销闹钟，已排队的触发会先处理完
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.stopped
	s.opts.Alarm.Stop()
	s.opts.Metrics.AlarmArmed(time.Time{})
}

func (s *Service) worker() {
	defer close(s.stopped)
	for t := range s.queue {
		err := s.sweep(context.Background(), t.reason)
		if err != nil {
			logger.Error("schedule sweep failed", zap.String("reason", t.reason), zap.Error(err))
		}
		if t.done != nil {
			t.done <- err
		}
	}
}

func (s *Service) sweep(ctx context.Context, reason string) error {
	s.Cancel()

	cutoff := s.opts.Now().Add(-s.opts.Grace).UnixMilli()
	purged, err := s.opts.Repo.DeleteScheduledRecordingsEndedBefore(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "purge expired windows")
	}
	s.opts.Metrics.Sweep(purged)

	next, err := s.opts.Repo.NextScheduledRecording(ctx)
	if errors.Is(err, models.ErrNotFound) {
		logger.Debug("no scheduled recording, alarm left unarmed",
			zap.String("reason", reason), zap.Int64("purged", purged))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "query next window")
	}

	at := next.StartTime()
	s.opts.Alarm.Arm(at, scheduler.FuncJob(s.fire))
	s.opts.Metrics.AlarmArmed(at)
	logger.Info("alarm armed", zap.String("reason", reason), zap.Uint("schedule", next.ID),
		zap.Time("at", at), zap.Int64("purged", purged))
	return nil
}

func (s *Service) fire(ctx context.Context) {
	s.opts.Metrics.AlarmArmed(time.Time{})
	if s.opts.Fire == nil {
		return
	}
	if err := s.opts.Fire(ctx); err != nil {
		logger.Warn("scheduled start failed", zap.Error(err))
	}
}
