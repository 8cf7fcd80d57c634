package models

import (
	"time"

	"gorm.io/gorm"
)

// NoExclusion 传给 CountOverlapping 表示不排除任何行
const NoExclusion int64 = -1

// ScheduledRecording 定时录音窗口，时间均为毫秒时间戳
type ScheduledRecording struct {
	ID    uint  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Start int64 `json:"start_time" gorm:"column:start_time;index:idx_scheduled_recordings_start_time;index:idx_scheduled_recordings_start_end,priority:1"`
	End   int64 `json:"end_time" gorm:"column:end_time;index:idx_scheduled_recordings_start_end,priority:2"`
}

func (ScheduledRecording) TableName() string {
	return "scheduled_recordings"
}

func (s *ScheduledRecording) StartTime() time.Time { return time.UnixMilli(s.Start) }
func (s *ScheduledRecording) EndTime() time.Time   { return time.UnixMilli(s.End) }

func (s *ScheduledRecording) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Millisecond
}

// InsertScheduledRecording 新增窗口；ID 已存在时整行替换
func InsertScheduledRecording(db *gorm.DB, s *ScheduledRecording) error {
	if s.ID == 0 {
		return db.Create(s).Error
	}
	return db.Save(s).Error
}

// UpdateScheduledRecording 返回受影响行数，0 表示不存在
func UpdateScheduledRecording(db *gorm.DB, s *ScheduledRecording) (int64, error) {
	res := db.Model(&ScheduledRecording{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"start_time": s.Start,
		"end_time":   s.End,
	})
	return res.RowsAffected, res.Error
}

func DeleteScheduledRecording(db *gorm.DB, s *ScheduledRecording) (int64, error) {
	return DeleteScheduledRecordingByID(db, s.ID)
}

func DeleteScheduledRecordingByID(db *gorm.DB, id uint) (int64, error) {
	res := db.Delete(&ScheduledRecording{}, id)
	return res.RowsAffected, res.Error
}

// DeleteScheduledRecordingsOlderThan 删除 start < cutoff 的窗口
func DeleteScheduledRecordingsOlderThan(db *gorm.DB, cutoff int64) error {
	return db.Where("start_time < ?", cutoff).Delete(&ScheduledRecording{}).Error
}

// DeleteScheduledRecordingsEndedBefore 删除 end < cutoff 的窗口，返回删除数
func DeleteScheduledRecordingsEndedBefore(db *gorm.DB, cutoff int64) (int64, error) {
	res := db.Where("end_time < ?", cutoff).Delete(&ScheduledRecording{})
	return res.RowsAffected, res.Error
}

func DeleteAllScheduledRecordings(db *gorm.DB) (int64, error) {
	res := db.Where("1 = 1").Delete(&ScheduledRecording{})
	return res.RowsAffected, res.Error
}

// NextScheduledRecording 全表 start 最小的一行，相同 start 取最小 ID。
// 不过滤已过期的行，调用前需先清理。
func NextScheduledRecording(db *gorm.DB) (*ScheduledRecording, error) {
	return firstScheduled(db.Order("start_time ASC").Order("id ASC"))
}

// NextScheduledRecordingAfter 只在 start >= now 的行中取最早一行
func NextScheduledRecordingAfter(db *gorm.DB, now int64) (*ScheduledRecording, error) {
	return firstScheduled(db.Where("start_time >= ?", now).Order("start_time ASC").Order("id ASC"))
}

func firstScheduled(q *gorm.DB) (*ScheduledRecording, error) {
	var list []ScheduledRecording
	if err := q.Limit(1).Find(&list).Error; err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// CountOverlapping 统计与 [start,end] 相交的窗口数（端点相接也算），excludeID 对应的行不计
func CountOverlapping(db *gorm.DB, start, end, excludeID int64) (int64, error) {
	var n int64
	err := db.Model(&ScheduledRecording{}).
		Where("((? >= start_time AND ? <= end_time) OR (? >= start_time AND ? <= end_time) OR (? < start_time AND ? > end_time))",
			start, start, end, end, start, end).
		Where("id != ?", excludeID).
		Count(&n).Error
	return n, err
}

// ScheduledRecordingsBetween start 落在 [start,end] 内的窗口
func ScheduledRecordingsBetween(db *gorm.DB, start, end int64) ([]ScheduledRecording, error) {
	var list []ScheduledRecording
	err := db.Where("start_time >= ? AND start_time <= ?", start, end).
		Order("start_time ASC").Order("id ASC").
		Find(&list).Error
	return list, err
}

func GetScheduledRecordingByID(db *gorm.DB, id uint) (*ScheduledRecording, error) {
	var s ScheduledRecording
	if err := db.Where("id = ?", id).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, ErrNotFound
	}
	return &s, nil
}

// GetAllScheduledRecordings 按开始时间升序
func GetAllScheduledRecordings(db *gorm.DB) ([]ScheduledRecording, error) {
	var list []ScheduledRecording
	err := db.Order("start_time ASC").Order("id ASC").Find(&list).Error
	return list, err
}

func CountScheduledRecordings(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&ScheduledRecording{}).Count(&n).Error
	return n, err
}
