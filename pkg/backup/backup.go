package backup

import (
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/scheduler"
	stores "ScheduledRecorder/pkg/storage"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Backup 数据库快照任务
type Backup struct {
	db     *gorm.DB
	driver string
	store  stores.Store
	now    func() time.Time
}

func New(db *gorm.DB, driver string, store stores.Store) *Backup {
	return &Backup{db: db, driver: driver, store: store, now: time.Now}
}

// Schedule 把备份任务挂到 cron 上
func (b *Backup) Schedule(cr *scheduler.Cron, spec string) error {
	_, err := cr.AddWithCtx(spec, func(ctx context.Context) {
		key, err := b.Execute(ctx)
		if err != nil {
			logger.Warn("backup failed", zap.Error(err))
			return
		}
		logger.Info("backup completed", zap.String("key", key))
	})
	return err
}

// Execute 执行一次备份，返回写入的对象键
func (b *Backup) Execute(ctx context.Context) (string, error) {
	switch b.driver {
	case "", "sqlite":
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER for backup: %s", b.driver)
	}

	key := fmt.Sprintf("recorder_backup_%s.db", b.now().Format("20060102_150405"))
	tmpDir, err := os.MkdirTemp("", "recorder-backup-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)
	snapshot := filepath.Join(tmpDir, key)

	if err := b.SnapshotSQLite(ctx, snapshot); err != nil {
		return "", err
	}
	f, err := os.Open(snapshot)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := b.store.Write(ctx, key, f); err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}
	return key, nil
}

// SnapshotSQLite 用 VACUUM INTO 生成一致的数据库副本，不阻塞其他写入太久
func (b *Backup) SnapshotSQLite(ctx context.Context, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return nil
}
