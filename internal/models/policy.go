package models

import (
	"ScheduledRecorder/pkg/errors"
	"time"
)

const (
	MinWindow = 5 * time.Minute
	MaxWindow = 3 * time.Hour
)

var (
	ErrAlreadyScheduled = errors.WithCode(errors.CodeAlreadyScheduled, "a recording is already scheduled in this window")
	ErrTimeInPast       = errors.WithCode(errors.CodeTimeInPast, "start time is in the past")
	ErrStartAfterEnd    = errors.WithCode(errors.CodeStartAfterEnd, "start time is after end time")
	ErrSaveFailed       = errors.WithCode(errors.CodeSaveFailed, "scheduled recording could not be saved")
)

// ValidateWindow 检查窗口起止：开始不得早于 now，结束必须晚于开始
func ValidateWindow(now time.Time, start, end int64) error {
	if now.UnixMilli() > start {
		return ErrTimeInPast
	}
	if end <= start {
		return ErrStartAfterEnd
	}
	return nil
}

// ClampWindow 把时长限制在 [MinWindow, MaxWindow]，只移动结束时间
func ClampWindow(start, end int64) (int64, int64) {
	d := time.Duration(end-start) * time.Millisecond
	switch {
	case d < MinWindow:
		end = start + MinWindow.Milliseconds()
	case d > MaxWindow:
		end = start + MaxWindow.Milliseconds()
	}
	return start, end
}

// DefaultWindow 新建定时录音时的默认窗口：所选日期 00:00-01:00；
// 若该时段已开始，则取 now 之后的下一个整点，时长一小时。
func DefaultWindow(day, now time.Time) ScheduledRecording {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if !start.After(now) {
		start = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
	}
	return ScheduledRecording{
		Start: start.UnixMilli(),
		End:   start.Add(time.Hour).UnixMilli(),
	}
}
