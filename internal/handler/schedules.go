package handlers

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/response"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// windowRequest 起止时间为 Unix 毫秒
type windowRequest struct {
	Start int64 `json:"start" binding:"required,gt=0"`
	End   int64 `json:"end" binding:"required,gt=0"`
}

func (h *Handlers) handleListSchedules(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		list, err := await(c, h.repo.Async().GetAllScheduledRecordings)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, "scheduled recordings", list)
		return
	}
	start, err1 := strconv.ParseInt(from, 10, 64)
	end, err2 := strconv.ParseInt(to, 10, 64)
	if err1 != nil || err2 != nil {
		response.Fail(c, "from and to must both be unix millis", nil)
		return
	}
	list, err := await(c, func(cb func([]models.ScheduledRecording, error)) {
		h.repo.Async().ScheduledRecordingsBetween(start, end, cb)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "scheduled recordings", list)
}

func (h *Handlers) handleCountSchedules(c *gin.Context) {
	n, err := await(c, h.repo.Async().CountScheduledRecordings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "scheduled recording count", gin.H{"count": n})
}

// handleNextSchedule 下一个尚未开始的窗口
func (h *Handlers) handleNextSchedule(c *gin.Context) {
	s, err := h.repo.NextScheduledRecordingAfter(c.Request.Context(), h.now().UnixMilli())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "next scheduled recording", s)
}

// handleDefaultWindow 新建窗口的预填值，?day=2006-01-02，缺省为今天
func (h *Handlers) handleDefaultWindow(c *gin.Context) {
	now := h.now()
	day := now
	if v := c.Query("day"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, now.Location())
		if err != nil {
			response.Fail(c, "day must be YYYY-MM-DD", nil)
			return
		}
		day = d
	}
	response.Success(c, "default window", models.DefaultWindow(day, now))
}

func (h *Handlers) handleCountOverlapping(c *gin.Context) {
	start, err1 := strconv.ParseInt(c.Query("start"), 10, 64)
	end, err2 := strconv.ParseInt(c.Query("end"), 10, 64)
	if err1 != nil || err2 != nil {
		response.Fail(c, "start and end must be unix millis", nil)
		return
	}
	exclude := models.NoExclusion
	if v := c.Query("exclude"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Fail(c, "invalid exclude id", nil)
			return
		}
		exclude = id
	}
	n, err := await(c, func(cb func(int64, error)) {
		h.repo.Async().CountOverlapping(start, end, exclude, cb)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "overlapping windows", gin.H{"count": n})
}

func (h *Handlers) handleGetSchedule(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.Fail(c, "invalid id", nil)
		return
	}
	s, err := await(c, func(cb func(*models.ScheduledRecording, error)) {
		h.repo.Async().GetScheduledRecordingByID(id, cb)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "scheduled recording", s)
}

func (h *Handlers) handleCreateSchedule(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	s, err := await(c, func(cb func(*models.ScheduledRecording, error)) {
		h.repo.Async().ScheduleRecording(req.Start, req.End, cb)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "recording scheduled", s)
}

func (h *Handlers) handleEditSchedule(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.Fail(c, "invalid id", nil)
		return
	}
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	s, err := await(c, func(cb func(*models.ScheduledRecording, error)) {
		h.repo.Async().EditScheduledRecording(id, req.Start, req.End, cb)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "scheduled recording updated", s)
}

func (h *Handlers) handleDeleteSchedule(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.Fail(c, "invalid id", nil)
		return
	}
	if err := awaitErr(c, func(cb func(error)) { h.repo.Async().DeleteScheduledRecordingByID(id, cb) }); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "scheduled recording deleted", nil)
}

func (h *Handlers) handleDeleteAllSchedules(c *gin.Context) {
	n, err := await(c, h.repo.Async().DeleteAllScheduledRecordings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "scheduled recordings deleted", gin.H{"deleted": n})
}
