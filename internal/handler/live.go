package handlers

import (
	"ScheduledRecorder/internal/listeners"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleLive 推送表的实时视图，连接后先发送请求主题的当前快照
func (h *Handlers) handleLive(c *gin.Context) {
	topics := c.Query("topics")
	if topics == "" {
		c.Request.URL.RawQuery = "topics=" + listeners.TopicRecordings + "," + listeners.TopicSchedules
		topics = listeners.TopicRecordings + "," + listeners.TopicSchedules
	}
	want := make(map[string]bool)
	for _, t := range strings.Split(topics, ",") {
		want[strings.TrimSpace(t)] = true
	}

	h.hub.Serve(c, uuid.NewString(), func(send func(event string, v interface{})) {
		if want[listeners.TopicRecordings] {
			if list, err := h.repo.GetAllRecordings(c.Request.Context()); err == nil {
				send(listeners.TopicRecordings, list)
			}
		}
		if want[listeners.TopicSchedules] {
			if list, err := h.repo.GetAllScheduledRecordings(c.Request.Context()); err == nil {
				send(listeners.TopicSchedules, list)
			}
		}
	})
}
