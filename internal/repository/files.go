package repository

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/capture"
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/logger"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

var ErrFileConflict = errors.WithCode(errors.CodeFileConflict, "a recording with this name already exists")

// NewRecordingPath 以当前毫秒时间戳生成唯一文件名 rec<millis><ext>
func (r *Repository) NewRecordingPath(ext string) (name, path string) {
	ms := r.now().UnixMilli()
	for {
		name = fmt.Sprintf("rec%d", ms)
		path = filepath.Join(r.dir, name+ext)
		if _, err := os.Stat(path); os.IsNotExist(err) && !r.isActive(path) {
			return name, path
		}
		ms++
	}
}

// MarkActive 标记正在写入的文件，对账时跳过
func (r *Repository) MarkActive(path string) {
	r.activeMu.Lock()
	r.active[path] = true
	r.activeMu.Unlock()
}

func (r *Repository) ClearActive(path string) {
	r.activeMu.Lock()
	delete(r.active, path)
	r.activeMu.Unlock()
}

func (r *Repository) isActive(path string) bool {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	return r.active[path]
}

// RenameRecording 先改文件名再更新行。行更新失败时尝试把文件改回去，
// 回滚也失败的情况留给 Reconcile 修复。
func (r *Repository) RenameRecording(ctx context.Context, rec *models.SavedRecording, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.ContainsAny(newName, `/\`) || newName == "." || newName == ".." {
		return errors.WithCodef(errors.CodeFileOperation, "invalid recording name %q", newName)
	}
	oldPath := rec.FilePath
	newPath := filepath.Join(r.dir, newName+filepath.Ext(oldPath))
	if _, err := os.Stat(newPath); err == nil {
		return ErrFileConflict
	}
	// 改名期间两个路径都不属于对账范围
	r.MarkActive(oldPath)
	r.MarkActive(newPath)
	defer r.ClearActive(oldPath)
	defer r.ClearActive(newPath)
	if err := os.Rename(oldPath, newPath); err != nil {
		return errors.WrapCode(err, errors.CodeFileOperation, "rename recording file")
	}

	updated := *rec
	updated.Name = newName
	updated.FilePath = newPath
	if err := r.UpdateRecording(ctx, &updated); err != nil {
		if rbErr := os.Rename(newPath, oldPath); rbErr != nil {
			logger.Error("rename rollback failed, left for reconcile",
				zap.Uint("id", rec.ID), zap.String("path", newPath), zap.Error(rbErr))
		}
		return errors.Wrap(err, "update renamed recording")
	}
	*rec = updated
	return nil
}

// DeleteRecording 先删文件再删行；文件删除失败则不动行。
// 文件本来就不存在时视为已删除。
func (r *Repository) DeleteRecording(ctx context.Context, rec *models.SavedRecording) error {
	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		return errors.WrapCode(err, errors.CodeFileOperation, "delete recording file")
	}
	n, err := models.DeleteRecording(r.db.WithContext(ctx), rec.ID)
	if err != nil {
		logger.Error("recording file deleted but row remains, left for reconcile",
			zap.Uint("id", rec.ID), zap.Error(err))
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteAllRecordings 清空录音：逐个删文件，只删除文件已删掉的行
func (r *Repository) DeleteAllRecordings(ctx context.Context) (int64, error) {
	list, err := r.GetAllRecordings(ctx)
	if err != nil {
		return 0, err
	}
	var deleted int64
	var firstErr error
	for i := range list {
		if err := r.DeleteRecording(ctx, &list[i]); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	return deleted, firstErr
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	RowsRemoved     int      `json:"rows_removed"`
	FilesRegistered int      `json:"files_registered"`
	Errors          []string `json:"errors,omitempty"`
}

// Reconcile 修复文件与行的偏差：删除文件已丢失的行，为目录中无行对应的录音文件补登记。
// 正在写入或改名中的路径不参与对账。
func (r *Repository) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	rows, err := r.GetAllRecordings(ctx)
	if err != nil {
		return rep, err
	}
	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		if r.isActive(row.FilePath) {
			known[filepath.Clean(row.FilePath)] = true
			continue
		}
		if _, err := os.Stat(row.FilePath); os.IsNotExist(err) {
			if _, err := models.DeleteRecording(r.db.WithContext(ctx), row.ID); err != nil {
				rep.Errors = append(rep.Errors, err.Error())
				continue
			}
			logger.Info("reconcile removed row without file", zap.Uint("id", row.ID), zap.String("path", row.FilePath))
			rep.RowsRemoved++
			continue
		}
		known[filepath.Clean(row.FilePath)] = true
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return rep, errors.WrapCode(err, errors.CodeFileOperation, "read recordings dir")
	}
	for _, e := range entries {
		if e.IsDir() || !capture.IsRecordingFile(e.Name()) {
			continue
		}
		path := filepath.Clean(filepath.Join(r.dir, e.Name()))
		if known[path] || r.isActive(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		rec := &models.SavedRecording{
			Name:      strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			FilePath:  path,
			Length:    wavLength(path).Milliseconds(),
			TimeAdded: info.ModTime().UnixMilli(),
		}
		if err := r.InsertRecording(ctx, rec); err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		logger.Info("reconcile registered orphan file", zap.Uint("id", rec.ID), zap.String("path", path))
		rep.FilesRegistered++
	}
	r.metrics.ReconcileFix("row_removed", rep.RowsRemoved)
	r.metrics.ReconcileFix("file_registered", rep.FilesRegistered)
	return rep, nil
}

// wavLength 读取 WAV 头计算时长，其他格式返回 0
func wavLength(path string) time.Duration {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return 0
	}
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0
	}
	dur, err := d.Duration()
	if err != nil {
		return 0
	}
	return dur
}
