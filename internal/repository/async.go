package repository

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/logger"
	"context"

	"go.uber.org/zap"
)

// Async 回调门面。每个操作在磁盘 IO 池上执行，
// 完成后在主分发 goroutine 上恰好回调一次；回调为 nil 时不投递。
type Async struct {
	r *Repository
}

func (a *Async) run(op string, work func(ctx context.Context) error, done func(error)) {
	closed := func() {
		a.r.metrics.RepoOperation(op, false)
		if done != nil && !a.r.main.Post(func() { done(ErrClosed) }) {
			done(ErrClosed)
		}
	}
	err := a.r.io.Submit(func(ctx context.Context) {
		err := work(ctx)
		a.r.metrics.RepoOperation(op, err == nil)
		if err != nil {
			logger.Debug("repository operation failed", zap.String("op", op), zap.Error(err))
		}
		if done != nil {
			a.r.main.Post(func() { done(err) })
		}
	}, closed)
	if err != nil {
		closed()
	}
}

// Recordings 订阅“按添加时间倒序的全部录音”，变化时推送
func (a *Async) Recordings(fn func([]models.SavedRecording)) (cancel func()) {
	return a.r.recordings.subscribe(fn)
}

// ScheduledRecordings 订阅全部定时窗口，变化时推送
func (a *Async) ScheduledRecordings(fn func([]models.ScheduledRecording)) (cancel func()) {
	return a.r.schedules.subscribe(fn)
}

// ---- saved recordings ----

func (a *Async) InsertRecording(rec *models.SavedRecording, cb func(error)) {
	a.run("insert_recording", func(ctx context.Context) error { return a.r.InsertRecording(ctx, rec) }, cb)
}

func (a *Async) UpdateRecording(rec *models.SavedRecording, cb func(error)) {
	a.run("update_recording", func(ctx context.Context) error { return a.r.UpdateRecording(ctx, rec) }, cb)
}

func (a *Async) RenameRecording(rec *models.SavedRecording, newName string, cb func(error)) {
	a.run("rename_recording", func(ctx context.Context) error { return a.r.RenameRecording(ctx, rec, newName) }, cb)
}

func (a *Async) DeleteRecording(rec *models.SavedRecording, cb func(error)) {
	a.run("delete_recording", func(ctx context.Context) error { return a.r.DeleteRecording(ctx, rec) }, cb)
}

func (a *Async) DeleteAllRecordings(cb func(int64, error)) {
	var n int64
	a.run("delete_all_recordings", func(ctx context.Context) (err error) {
		n, err = a.r.DeleteAllRecordings(ctx)
		return
	}, wrap(cb, &n))
}

func (a *Async) GetRecordingByID(id uint, cb func(*models.SavedRecording, error)) {
	var out *models.SavedRecording
	a.run("get_recording", func(ctx context.Context) (err error) {
		out, err = a.r.GetRecordingByID(ctx, id)
		return
	}, wrap(cb, &out))
}

func (a *Async) GetAllRecordings(cb func([]models.SavedRecording, error)) {
	var out []models.SavedRecording
	a.run("get_all_recordings", func(ctx context.Context) (err error) {
		out, err = a.r.GetAllRecordings(ctx)
		return
	}, wrap(cb, &out))
}

func (a *Async) CountRecordings(cb func(int64, error)) {
	var n int64
	a.run("count_recordings", func(ctx context.Context) (err error) {
		n, err = a.r.CountRecordings(ctx)
		return
	}, wrap(cb, &n))
}

// ---- scheduled recordings ----

func (a *Async) InsertScheduledRecording(s *models.ScheduledRecording, cb func(error)) {
	a.run("insert_schedule", func(ctx context.Context) error { return a.r.InsertScheduledRecording(ctx, s) }, cb)
}

func (a *Async) UpdateScheduledRecording(s *models.ScheduledRecording, cb func(error)) {
	a.run("update_schedule", func(ctx context.Context) error { return a.r.UpdateScheduledRecording(ctx, s) }, cb)
}

func (a *Async) DeleteScheduledRecording(s *models.ScheduledRecording, cb func(error)) {
	a.run("delete_schedule", func(ctx context.Context) error { return a.r.DeleteScheduledRecording(ctx, s) }, cb)
}

func (a *Async) DeleteScheduledRecordingByID(id uint, cb func(error)) {
	a.run("delete_schedule", func(ctx context.Context) error { return a.r.DeleteScheduledRecordingByID(ctx, id) }, cb)
}

// DeleteScheduledRecordingsOlderThan 清理过期窗口，不回调结果
func (a *Async) DeleteScheduledRecordingsOlderThan(cutoff int64) {
	a.run("delete_old_schedules", func(ctx context.Context) error { return a.r.DeleteScheduledRecordingsOlderThan(ctx, cutoff) }, nil)
}

func (a *Async) DeleteAllScheduledRecordings(cb func(int64, error)) {
	var n int64
	a.run("delete_all_schedules", func(ctx context.Context) (err error) {
		n, err = a.r.DeleteAllScheduledRecordings(ctx)
		return
	}, wrap(cb, &n))
}

func (a *Async) NextScheduledRecording(cb func(*models.ScheduledRecording, error)) {
	var out *models.ScheduledRecording
	a.run("next_schedule", func(ctx context.Context) (err error) {
		out, err = a.r.NextScheduledRecording(ctx)
		return
	}, wrap(cb, &out))
}

func (a *Async) CountOverlapping(start, end, excludeID int64, cb func(int64, error)) {
	var n int64
	a.run("count_overlapping", func(ctx context.Context) (err error) {
		n, err = a.r.CountOverlapping(ctx, start, end, excludeID)
		return
	}, wrap(cb, &n))
}

func (a *Async) ScheduledRecordingsBetween(start, end int64, cb func([]models.ScheduledRecording, error)) {
	var out []models.ScheduledRecording
	a.run("schedules_between", func(ctx context.Context) (err error) {
		out, err = a.r.ScheduledRecordingsBetween(ctx, start, end)
		return
	}, wrap(cb, &out))
}

func (a *Async) GetScheduledRecordingByID(id uint, cb func(*models.ScheduledRecording, error)) {
	var out *models.ScheduledRecording
	a.run("get_schedule", func(ctx context.Context) (err error) {
		out, err = a.r.GetScheduledRecordingByID(ctx, id)
		return
	}, wrap(cb, &out))
}

func (a *Async) GetAllScheduledRecordings(cb func([]models.ScheduledRecording, error)) {
	var out []models.ScheduledRecording
	a.run("get_all_schedules", func(ctx context.Context) (err error) {
		out, err = a.r.GetAllScheduledRecordings(ctx)
		return
	}, wrap(cb, &out))
}

func (a *Async) CountScheduledRecordings(cb func(int64, error)) {
	var n int64
	a.run("count_schedules", func(ctx context.Context) (err error) {
		n, err = a.r.CountScheduledRecordings(ctx)
		return
	}, wrap(cb, &n))
}

// ScheduleRecording 带策略检查的新增，错误码见 Repository.ScheduleRecording
func (a *Async) ScheduleRecording(start, end int64, cb func(*models.ScheduledRecording, error)) {
	var out *models.ScheduledRecording
	a.run("schedule_recording", func(ctx context.Context) (err error) {
		out, err = a.r.ScheduleRecording(ctx, start, end)
		return
	}, wrap(cb, &out))
}

func (a *Async) EditScheduledRecording(id uint, start, end int64, cb func(*models.ScheduledRecording, error)) {
	var out *models.ScheduledRecording
	a.run("edit_schedule", func(ctx context.Context) (err error) {
		out, err = a.r.EditScheduledRecording(ctx, id, start, end)
		return
	}, wrap(cb, &out))
}

// wrap 把带结果的回调转成 func(error)，结果在回调时读取
func wrap[T any](cb func(T, error), out *T) func(error) {
	if cb == nil {
		return nil
	}
	return func(err error) { cb(*out, err) }
}
