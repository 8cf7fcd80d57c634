package models

import (
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/util"

	"gorm.io/gorm"
)

const (
	SigRecordingsChanged = "recordings.changed"
	SigSchedulesChanged  = "schedules.changed"
)

var ErrNotFound = errors.WithCode(errors.CodeNotFound, "record not found")

// Migrate 建表与索引
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SavedRecording{}, &ScheduledRecording{})
}

// Watch 在写操作提交后向 sig 发出表变更信号：
// sender 为表名，params 为 操作名 与 受影响行数。
func Watch(db *gorm.DB, sig *util.Signals) error {
	notify := func(op string) func(tx *gorm.DB) {
		return func(tx *gorm.DB) {
			if tx.Error != nil || tx.RowsAffected == 0 || tx.Statement == nil {
				return
			}
			switch tx.Statement.Table {
			case SavedRecording{}.TableName():
				sig.Emit(SigRecordingsChanged, tx.Statement.Table, op, tx.RowsAffected)
			case ScheduledRecording{}.TableName():
				sig.Emit(SigSchedulesChanged, tx.Statement.Table, op, tx.RowsAffected)
			}
		}
	}
	cb := db.Callback()
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").Register("recorder:notify_create", notify("create")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").Register("recorder:notify_update", notify("update")); err != nil {
		return err
	}
	return cb.Delete().After("gorm:commit_or_rollback_transaction").Register("recorder:notify_delete", notify("delete"))
}
