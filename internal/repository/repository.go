package repository

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/cache"
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/executor"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/metrics"
	"ScheduledRecorder/pkg/util"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrClosed = errors.WithCode(errors.CodeServiceClosed, "repository closed")

// Options 仓库依赖
type Options struct {
	DB       *gorm.DB
	Dir      string // 录音文件目录
	Workers  int64  // 磁盘 IO 并发上限
	Signals  *util.Signals
	Cache    cache.Cache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Repository 录音与定时录音的唯一写入方。
// 同步方法在调用者 goroutine 上执行，Async() 返回回调形式的门面。
type Repository struct {
	db      *gorm.DB
	dir     string
	sig     *util.Signals
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	io   *executor.DiskIO
	main *executor.Main

	// 策略检查与写入需要原子，避免两个并发请求都通过重叠检查
	scheduleMu sync.Mutex

	activeMu sync.Mutex
	active   map[string]bool

	sigIDs     []uint64
	recordings *liveView[[]models.SavedRecording]
	schedules  *liveView[[]models.ScheduledRecording]
	async      *Async
}

func New(opts Options) (*Repository, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("repository: nil db")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("repository: empty recordings dir")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.WrapCode(err, errors.CodeFileOperation, "create recordings dir")
	}
	if opts.Signals == nil {
		opts.Signals = util.NewSignals()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewGoCache(cache.DefaultLocalConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Repository{
		db:      opts.DB,
		dir:     opts.Dir,
		sig:     opts.Signals,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		metrics: opts.Metrics,
		now:     opts.Now,
		io:      executor.NewDiskIO(opts.Workers),
		main:    executor.NewMain(),
		active:  make(map[string]bool),
	}
	if err := models.Watch(r.db, r.sig); err != nil {
		return nil, err
	}
	r.recordings = newLiveView(r, "recordings", r.GetAllRecordings)
	r.schedules = newLiveView(r, "schedules", r.GetAllScheduledRecordings)
	r.sigIDs = append(r.sigIDs,
		r.sig.Connect(models.SigRecordingsChanged, func(sender any, params ...any) {
			_ = r.cache.Clear(context.Background())
			r.recordings.refresh()
		}),
		r.sig.Connect(models.SigSchedulesChanged, func(sender any, params ...any) {
			r.schedules.refresh()
		}),
	)
	r.async = &Async{r: r}
	return r, nil
}

// Async 回调门面：操作在磁盘 IO 池执行，回调在主分发 goroutine 上执行
func (r *Repository) Async() *Async { return r.async }

func (r *Repository) Dir() string { return r.dir }

func (r *Repository) Signals() *util.Signals { return r.sig }

// Close 停止接收新任务，等待进行中的任务与已投递的回调
func (r *Repository) Close() {
	r.sig.Disconnect(models.SigRecordingsChanged, r.sigIDs[0])
	r.sig.Disconnect(models.SigSchedulesChanged, r.sigIDs[1])
	r.io.Close()
	r.main.Close()
}

// ---- saved recordings ----

func (r *Repository) InsertRecording(ctx context.Context, rec *models.SavedRecording) error {
	return models.InsertRecording(r.db.WithContext(ctx), rec)
}

func (r *Repository) UpdateRecording(ctx context.Context, rec *models.SavedRecording) error {
	n, err := models.UpdateRecording(r.db.WithContext(ctx), rec)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetRecordingByID 先查缓存，表变更时缓存整体失效
func (r *Repository) GetRecordingByID(ctx context.Context, id uint) (*models.SavedRecording, error) {
	key := fmt.Sprintf("recording:%d", id)
	if v, ok := r.cache.Get(ctx, key); ok {
		r.metrics.RecordCacheHit()
		rec := v.(models.SavedRecording)
		return &rec, nil
	}
	r.metrics.RecordCacheMiss()
	rec, err := models.GetRecordingByID(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, *rec, r.ttl)
	return rec, nil
}

func (r *Repository) GetAllRecordings(ctx context.Context) ([]models.SavedRecording, error) {
	return models.GetAllRecordings(r.db.WithContext(ctx))
}

func (r *Repository) CountRecordings(ctx context.Context) (int64, error) {
	return models.CountRecordings(r.db.WithContext(ctx))
}

// ---- scheduled recordings ----

func (r *Repository) InsertScheduledRecording(ctx context.Context, s *models.ScheduledRecording) error {
	return models.InsertScheduledRecording(r.db.WithContext(ctx), s)
}

func (r *Repository) UpdateScheduledRecording(ctx context.Context, s *models.ScheduledRecording) error {
	n, err := models.UpdateScheduledRecording(r.db.WithContext(ctx), s)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteScheduledRecording(ctx context.Context, s *models.ScheduledRecording) error {
	return r.DeleteScheduledRecordingByID(ctx, s.ID)
}

func (r *Repository) DeleteScheduledRecordingByID(ctx context.Context, id uint) error {
	n, err := models.DeleteScheduledRecordingByID(r.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteScheduledRecordingsOlderThan(ctx context.Context, cutoff int64) error {
	return models.DeleteScheduledRecordingsOlderThan(r.db.WithContext(ctx), cutoff)
}

func (r *Repository) DeleteScheduledRecordingsEndedBefore(ctx context.Context, cutoff int64) (int64, error) {
	return models.DeleteScheduledRecordingsEndedBefore(r.db.WithContext(ctx), cutoff)
}

func (r *Repository) DeleteAllScheduledRecordings(ctx context.Context) (int64, error) {
	return models.DeleteAllScheduledRecordings(r.db.WithContext(ctx))
}

func (r *Repository) NextScheduledRecording(ctx context.Context) (*models.ScheduledRecording, error) {
	return models.NextScheduledRecording(r.db.WithContext(ctx))
}

func (r *Repository) NextScheduledRecordingAfter(ctx context.Context, now int64) (*models.ScheduledRecording, error) {
	return models.NextScheduledRecordingAfter(r.db.WithContext(ctx), now)
}

func (r *Repository) CountOverlapping(ctx context.Context, start, end, excludeID int64) (int64, error) {
	return models.CountOverlapping(r.db.WithContext(ctx), start, end, excludeID)
}

func (r *Repository) ScheduledRecordingsBetween(ctx context.Context, start, end int64) ([]models.ScheduledRecording, error) {
	return models.ScheduledRecordingsBetween(r.db.WithContext(ctx), start, end)
}

func (r *Repository) GetScheduledRecordingByID(ctx context.Context, id uint) (*models.ScheduledRecording, error) {
	return models.GetScheduledRecordingByID(r.db.WithContext(ctx), id)
}

func (r *Repository) GetAllScheduledRecordings(ctx context.Context) ([]models.ScheduledRecording, error) {
	return models.GetAllScheduledRecordings(r.db.WithContext(ctx))
}

func (r *Repository) CountScheduledRecordings(ctx context.Context) (int64, error) {
	return models.CountScheduledRecordings(r.db.WithContext(ctx))
}

// ScheduleRecording 校验、规整并保存一个新窗口。
// 失败时返回带错误码的 error：已占用、时间已过、开始晚于结束、保存失败。
func (r *Repository) ScheduleRecording(ctx context.Context, start, end int64) (*models.ScheduledRecording, error) {
	return r.saveWindow(ctx, 0, start, end)
}

// EditScheduledRecording 修改已有窗口，重叠检查排除自身
func (r *Repository) EditScheduledRecording(ctx context.Context, id uint, start, end int64) (*models.ScheduledRecording, error) {
	return r.saveWindow(ctx, id, start, end)
}

func (r *Repository) saveWindow(ctx context.Context, id uint, start, end int64) (*models.ScheduledRecording, error) {
	if err := models.ValidateWindow(r.now(), start, end); err != nil {
		return nil, err
	}
	start, end = models.ClampWindow(start, end)

	r.scheduleMu.Lock()
	defer r.scheduleMu.Unlock()

	exclude := models.NoExclusion
	if id != 0 {
		exclude = int64(id)
	}
	n, err := r.CountOverlapping(ctx, start, end, exclude)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeSaveFailed, models.ErrSaveFailed.Message)
	}
	if n > 0 {
		return nil, models.ErrAlreadyScheduled
	}

	s := &models.ScheduledRecording{ID: id, Start: start, End: end}
	if id == 0 {
		err = r.InsertScheduledRecording(ctx, s)
	} else {
		err = r.UpdateScheduledRecording(ctx, s)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		logger.Warn("save scheduled recording failed", zap.Uint("id", id), zap.Error(err))
		return nil, errors.WrapCode(err, errors.CodeSaveFailed, models.ErrSaveFailed.Message)
	}
	return s, nil
}
