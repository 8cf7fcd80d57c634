package listeners

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/search"
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// InitSearchListener 录音表每次变化后用完整列表重建名称索引
func InitSearchListener(repo *repository.Repository, idx *search.Index) func() {
	return repo.Async().Recordings(func(list []models.SavedRecording) {
		docs := make([]search.Doc, 0, len(list))
		for _, r := range list {
			docs = append(docs, search.Doc{
				ID:     strconv.FormatUint(uint64(r.ID), 10),
				Name:   r.Name,
				Length: time.Duration(r.Length) * time.Millisecond,
				Added:  time.UnixMilli(r.TimeAdded),
			})
		}
		if err := idx.Replace(context.Background(), docs); err != nil {
			logger.Warn("reindex recordings failed", zap.Int("count", len(docs)), zap.Error(err))
		}
	})
}
