package models

import (
	"time"

	"gorm.io/gorm"
)

// SavedRecording 已完成的录音
type SavedRecording struct {
	ID        uint   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Name      string `json:"recording_name" gorm:"column:recording_name;size:255"` // 显示名，可重命名
	FilePath  string `json:"file_path" gorm:"column:file_path;size:1024"`
	Length    int64  `json:"length" gorm:"column:length"`                 // 毫秒
	TimeAdded int64  `json:"time_added" gorm:"column:time_added;index"` // 毫秒时间戳
}

func (SavedRecording) TableName() string {
	return "saved_recordings"
}

func (r *SavedRecording) Duration() time.Duration {
	return time.Duration(r.Length) * time.Millisecond
}

func (r *SavedRecording) AddedAt() time.Time {
	return time.UnixMilli(r.TimeAdded)
}

// InsertRecording 新增录音；ID 已存在时整行替换
func InsertRecording(db *gorm.DB, r *SavedRecording) error {
	if r.ID == 0 {
		return db.Create(r).Error
	}
	return db.Save(r).Error
}

// UpdateRecording 按 ID 更新，返回受影响行数，0 表示不存在
func UpdateRecording(db *gorm.DB, r *SavedRecording) (int64, error) {
	res := db.Model(&SavedRecording{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
		"recording_name": r.Name,
		"file_path":      r.FilePath,
		"length":         r.Length,
		"time_added":     r.TimeAdded,
	})
	return res.RowsAffected, res.Error
}

// DeleteRecording 删除一行，返回受影响行数
func DeleteRecording(db *gorm.DB, id uint) (int64, error) {
	res := db.Delete(&SavedRecording{}, id)
	return res.RowsAffected, res.Error
}

// DeleteAllRecordings 清空录音表
func DeleteAllRecordings(db *gorm.DB) (int64, error) {
	res := db.Where("1 = 1").Delete(&SavedRecording{})
	return res.RowsAffected, res.Error
}

// GetRecordingByID 不存在时返回 ErrNotFound
func GetRecordingByID(db *gorm.DB, id uint) (*SavedRecording, error) {
	var r SavedRecording
	if err := db.Where("id = ?", id).Limit(1).Find(&r).Error; err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, ErrNotFound
	}
	return &r, nil
}

// GetAllRecordings 按添加时间倒序
func GetAllRecordings(db *gorm.DB) ([]SavedRecording, error) {
	var list []SavedRecording
	if err := db.Order("time_added DESC").Order("id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func CountRecordings(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&SavedRecording{}).Count(&n).Error
	return n, err
}

// RecordingsByPath 按文件路径查找，重命名冲突检查与对账使用
func RecordingsByPath(db *gorm.DB, path string) ([]SavedRecording, error) {
	var list []SavedRecording
	if err := db.Where("file_path = ?", path).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
