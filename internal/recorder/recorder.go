package recorder

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/pkg/capture"
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/metrics"
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRecording = errors.WithCode(errors.CodeAlreadyRecording, "a recording is already in progress")
	ErrNotRecording     = errors.WithCode(errors.CodeNotRecording, "no recording in progress")
	ErrCaptureFailed    = errors.WithCode(errors.CodeCaptureFailed, "capture device could not start")
	ErrShutdown         = errors.WithCode(errors.CodeServiceClosed, "recorder shut down")
)

const (
	OriginManual    = "manual"
	OriginScheduled = "scheduled"
)

// dueSlack 唤醒时允许的时钟误差
const dueSlack = time.Second

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRecording Phase = "recording"
)

// Status 录音服务当前状态快照
type Status struct {
	Phase       Phase         `json:"phase"`
	SessionID   string        `json:"session_id,omitempty"`
	Origin      string        `json:"origin,omitempty"`
	Path        string        `json:"path,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	MaxDuration time.Duration `json:"max_duration"`
	Seconds     int           `json:"seconds"`
	Bound       bool          `json:"bound"`
}

// Options 录音服务依赖
type Options struct {
	Repo    *repository.Repository
	Factory capture.Factory
	Backend string
	Quality capture.Quality
	// Permissions 返回 nil 表示可以录音；默认检查目录可写
	Permissions func() error
	// Trigger 定时录音被消费后请求重新计算下一次唤醒
	Trigger func(reason string)
	// OnIdle 无观察者时录音结束后调用
	OnIdle  func()
	Metrics *metrics.Metrics
	Now     func() time.Time

	TickInterval      time.Duration
	AmplitudeInterval time.Duration
	EventBuffer       int
}

// session 即 Recording 状态；Recorder.sess 为 nil 时处于 Idle
type session struct {
	id          string
	origin      string
	name        string
	path        string
	startedAt   time.Time
	maxDuration time.Duration
	seconds     int
	dev         capture.Device
	tick        *time.Ticker
	amp         *time.Ticker
	cutoff      *time.Timer
}

type opKind int

const (
	opStart opKind = iota
	opStop
	opStatus
	opAttach
	opDetach
	opShutdown
)

type request struct {
	op     opKind
	max    time.Duration
	origin string
	obs    *observer
	reply  chan reply
}

type reply struct {
	status Status
	obs    *observer
	err    error
}

// Recorder 录音会话服务。所有状态由一个 goroutine 持有，外部通过消息调用。
type Recorder struct {
	opts  Options
	reqs  chan request
	done  chan struct{}
	once  sync.Once
	sess  *session
	obs   *observer
	obsID uint64
}

func New(opts Options) *Recorder {
	if opts.Factory == nil {
		opts.Factory = func() capture.Device { return capture.NewSynthetic() }
	}
	if opts.Quality.SampleRate == 0 {
		opts.Quality = capture.QualityStandard
	}
	if opts.Permissions == nil {
		dir, backend := opts.Repo.Dir(), opts.Backend
		opts.Permissions = func() error { return capture.CheckPermissions(dir, backend) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.AmplitudeInterval <= 0 {
		opts.AmplitudeInterval = 100 * time.Millisecond
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	r := &Recorder{
		opts: opts,
		reqs: make(chan request),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

// StartRecording 从 Idle 开始录音；maxDuration 为 0 表示不限时
func (r *Recorder) StartRecording(maxDuration time.Duration) (Status, error) {
	return r.start(maxDuration, OriginManual)
}

func (r *Recorder) start(maxDuration time.Duration, origin string) (Status, error) {
	rep := r.call(request{op: opStart, max: maxDuration, origin: origin})
	return rep.status, rep.err
}

// StopRecording 停止录音并异步保存记录，返回停止前的状态
func (r *Recorder) StopRecording() (Status, error) {
	rep := r.call(request{op: opStop})
	return rep.status, rep.err
}

func (r *Recorder) Status() Status {
	rep := r.call(request{op: opStatus})
	if rep.err != nil {
		return Status{Phase: PhaseIdle}
	}
	return rep.status
}

// Attach 绑定唯一的观察者，替换并关闭之前的观察者通道。
// 返回的 detach 只在该观察者仍是当前观察者时生效。
// 事件在录音 goroutine 上非阻塞投递，缓冲区满时丢弃。
func (r *Recorder) Attach() (<-chan Event, func()) {
	rep := r.call(request{op: opAttach})
	if rep.err != nil {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	o := rep.obs
	return o.ch, func() { r.call(request{op: opDetach, obs: o}) }
}

// Detach 解绑当前观察者，不影响进行中的录音
func (r *Recorder) Detach() {
	r.call(request{op: opDetach})
}

// StartHeadless 定时唤醒入口：消费最早的定时窗口，请求重新布置闹钟，
// 权限满足时录制该窗口时长。权限缺失时窗口被静默跳过。
// 最早的窗口尚未到开始时间时不消费，只请求重新布置。
func (r *Recorder) StartHeadless(ctx context.Context) error {
	repo := r.opts.Repo
	next, err := repo.NextScheduledRecording(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.Info("headless start without pending schedule")
			r.trigger("headless-empty")
			return nil
		}
		return err
	}
	now := r.opts.Now().UnixMilli()
	if next.Start > now+dueSlack.Milliseconds() {
		logger.Info("scheduled window not due yet", zap.Uint("id", next.ID), zap.Int64("start", next.Start))
		r.trigger("headless-early")
		return nil
	}
	if err := repo.DeleteScheduledRecording(ctx, next); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	r.trigger("schedule-consumed")

	if next.End <= now {
		logger.Warn("scheduled window already over, skipped", zap.Uint("id", next.ID), zap.Int64("end", next.End))
		return nil
	}
	if err := r.opts.Permissions(); err != nil {
		logger.Info("capture not permitted, scheduled window skipped", zap.Uint("id", next.ID), zap.Error(err))
		return nil
	}
	from := next.Start
	if now > from {
		from = now
	}
	d := time.Duration(next.End-from) * time.Millisecond
	st, err := r.start(d, OriginScheduled)
	if err != nil {
		return err
	}
	logger.Info("scheduled recording started", zap.Uint("schedule", next.ID),
		zap.String("session", st.SessionID), zap.Duration("duration", d))
	return nil
}

// Shutdown 结束服务；录音中会先停止录音
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.once.Do(func() {
		go r.call(request{op: opShutdown})
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) trigger(reason string) {
	if r.opts.Trigger != nil {
		r.opts.Trigger(reason)
	}
}

func (r *Recorder) call(req request) reply {
	req.reply = make(chan reply, 1)
	select {
	case r.reqs <- req:
	case <-r.done:
		return reply{err: ErrShutdown}
	}
	return <-req.reply
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		var tickC, ampC, cutC <-chan time.Time
		if s := r.sess; s != nil {
			tickC, ampC = s.tick.C, s.amp.C
			if s.cutoff != nil {
				cutC = s.cutoff.C
			}
		}
		select {
		case req := <-r.reqs:
			if req.op == opShutdown {
				if r.sess != nil {
					logger.Info("recorder shutting down during recording, stopping first")
					r.stop(true)
				}
				r.setObserver(nil)
				req.reply <- reply{}
				return
			}
			req.reply <- r.handle(req)
		case <-tickC:
			r.sess.seconds++
			r.emit(Event{Kind: EventTick, Seconds: r.sess.seconds})
		case <-ampC:
			r.emit(Event{Kind: EventAmplitude, Level: r.sess.dev.MaxAmplitude()})
		case <-cutC:
			logger.Info("recording reached max duration", zap.String("session", r.sess.id),
				zap.Duration("max", r.sess.maxDuration))
			r.stop(false)
		}
	}
}

func (r *Recorder) handle(req request) reply {
	switch req.op {
	case opStart:
		if r.sess != nil {
			return reply{status: r.status(), err: ErrAlreadyRecording}
		}
		if err := r.begin(req.max, req.origin); err != nil {
			return reply{status: r.status(), err: err}
		}
		return reply{status: r.status()}
	case opStop:
		if r.sess == nil {
			return reply{status: r.status(), err: ErrNotRecording}
		}
		st := r.status()
		r.stop(false)
		return reply{status: st}
	case opStatus:
		return reply{status: r.status()}
	case opAttach:
		r.obsID++
		o := newObserver(r.obsID, r.opts.EventBuffer)
		r.setObserver(o)
		return reply{obs: o}
	case opDetach:
		if req.obs == nil || (r.obs != nil && r.obs.id == req.obs.id) {
			r.setObserver(nil)
		}
		return reply{}
	}
	return reply{}
}

func (r *Recorder) begin(maxDuration time.Duration, origin string) error {
	dev := r.opts.Factory()
	name, path := r.opts.Repo.NewRecordingPath(dev.Ext())
	r.opts.Repo.MarkActive(path)

	if err := dev.Prepare(path, r.opts.Quality); err != nil {
		return r.abort(dev, path, err)
	}
	if err := dev.Start(); err != nil {
		return r.abort(dev, path, err)
	}

	s := &session{
		id:          uuid.NewString(),
		origin:      origin,
		name:        name,
		path:        path,
		startedAt:   r.opts.Now(),
		maxDuration: maxDuration,
		dev:         dev,
		tick:        time.NewTicker(r.opts.TickInterval),
		amp:         time.NewTicker(r.opts.AmplitudeInterval),
	}
	if maxDuration > 0 {
		s.cutoff = time.NewTimer(maxDuration)
	}
	r.sess = s
	r.opts.Metrics.RecordingStarted(origin)
	logger.Info("recording started", zap.String("session", s.id), zap.String("origin", origin),
		zap.String("path", path), zap.Duration("max", maxDuration))
	r.emit(Event{Kind: EventStarted, Path: path})
	return nil
}

// abort 启动失败：释放设备，删除半成品文件，保持 Idle
func (r *Recorder) abort(dev capture.Device, path string, cause error) error {
	dev.Release()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove partial recording failed", zap.String("path", path), zap.Error(err))
	}
	r.opts.Repo.ClearActive(path)
	r.opts.Metrics.RecordingAborted()
	logger.Error("capture start failed", zap.String("path", path), zap.Error(cause))
	return errors.WrapCode(cause, errors.CodeCaptureFailed, ErrCaptureFailed.Message)
}

// stop 结束当前会话并保存；final 为 true 时同步写库
func (r *Recorder) stop(final bool) {
	s := r.sess
	r.sess = nil
	s.tick.Stop()
	s.amp.Stop()
	if s.cutoff != nil {
		s.cutoff.Stop()
	}
	if err := s.dev.Stop(); err != nil {
		logger.Warn("capture stop failed", zap.String("session", s.id), zap.Error(err))
	}
	length := r.opts.Now().Sub(s.startedAt)
	s.dev.Release()
	r.opts.Metrics.RecordingStopped(length)
	logger.Info("recording stopped", zap.String("session", s.id), zap.Duration("length", length))

	r.emitSession(s.id, Event{Kind: EventStopped, Path: s.path})

	rec := &models.SavedRecording{
		Name:      s.name,
		FilePath:  s.path,
		Length:    length.Milliseconds(),
		TimeAdded: r.opts.Now().UnixMilli(),
	}
	repo := r.opts.Repo
	if final {
		// 仓库随后关闭，不能交给异步队列
		err := repo.InsertRecording(context.Background(), rec)
		repo.ClearActive(rec.FilePath)
		logSaved(rec, err)
		return
	}
	repo.Async().InsertRecording(rec, func(err error) {
		repo.ClearActive(rec.FilePath)
		logSaved(rec, err)
	})

	if r.obs == nil && r.opts.OnIdle != nil {
		go r.opts.OnIdle()
	}
}

func logSaved(rec *models.SavedRecording, err error) {
	if err != nil {
		logger.Error("save recording failed", zap.String("path", rec.FilePath), zap.Error(err))
		return
	}
	logger.Info("recording saved", zap.Uint("id", rec.ID), zap.String("name", rec.Name))
}

func (r *Recorder) status() Status {
	st := Status{Phase: PhaseIdle, Bound: r.obs != nil}
	if s := r.sess; s != nil {
		st.Phase = PhaseRecording
		st.SessionID = s.id
		st.Origin = s.origin
		st.Path = s.path
		st.StartedAt = s.startedAt
		st.MaxDuration = s.maxDuration
		st.Seconds = s.seconds
	}
	return st
}

func (r *Recorder) setObserver(o *observer) {
	if r.obs != nil {
		r.obs.close()
	}
	r.obs = o
}

func (r *Recorder) emit(ev Event) {
	id := ""
	if r.sess != nil {
		id = r.sess.id
	}
	r.emitSession(id, ev)
}

func (r *Recorder) emitSession(id string, ev Event) {
	if r.obs == nil {
		return
	}
	ev.SessionID = id
	ev.At = r.opts.Now()
	r.obs.send(ev)
}
