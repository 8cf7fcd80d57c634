package listeners

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/sse"

	"go.uber.org/zap"
)

const (
	TopicRecordings = "recordings"
	TopicSchedules  = "schedules"
)

// Trigger 接收调度重算请求
type Trigger interface {
	Trigger(reason string)
}

// InitRecorderListeners 定时表变化时请求重新布置闹钟；两张表的实时视图推送到 SSE。
// 返回的函数撤销全部订阅。
func InitRecorderListeners(repo *repository.Repository, sched Trigger, hub *sse.Hub) func() {
	sig := repo.Signals()
	id := sig.Connect(models.SigSchedulesChanged, func(sender any, params ...any) {
		table, _ := sender.(string)
		logger.Debug("schedules changed", zap.String("table", table), zap.Any("params", params))
		sched.Trigger("schedules-changed")
	})

	cancelRecordings := repo.Async().Recordings(func(list []models.SavedRecording) {
		hub.Publish(TopicRecordings, TopicRecordings, list)
	})
	cancelSchedules := repo.Async().ScheduledRecordings(func(list []models.ScheduledRecording) {
		hub.Publish(TopicSchedules, TopicSchedules, list)
	})

	return func() {
		sig.Disconnect(models.SigSchedulesChanged, id)
		cancelRecordings()
		cancelSchedules()
	}
}
