package handlers

import (
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/response"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
)

type renameRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

func (h *Handlers) handleListRecordings(c *gin.Context) {
	list, err := await(c, h.repo.Async().GetAllRecordings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recordings", list)
}

func (h *Handlers) handleCountRecordings(c *gin.Context) {
	n, err := await(c, h.repo.Async().CountRecordings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recording count", gin.H{"count": n})
}

// handleSearchRecordings 按名称搜索，?q=关键词&limit=条数
func (h *Handlers) handleSearchRecordings(c *gin.Context) {
	if h.search == nil {
		response.Fail(c, "search not enabled", nil)
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 200 {
			response.Fail(c, "limit must be between 0 and 200", nil)
			return
		}
		limit = n
	}
	res, err := h.search.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "search results", res)
}

func (h *Handlers) loadRecording(c *gin.Context) (*models.SavedRecording, bool) {
	id, ok := paramID(c)
	if !ok {
		response.Fail(c, "invalid id", nil)
		return nil, false
	}
	rec, err := await(c, func(cb func(*models.SavedRecording, error)) {
		h.repo.Async().GetRecordingByID(id, cb)
	})
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return rec, true
}

func (h *Handlers) handleGetRecording(c *gin.Context) {
	rec, ok := h.loadRecording(c)
	if !ok {
		return
	}
	response.Success(c, "recording", rec)
}

func (h *Handlers) handleDownloadRecording(c *gin.Context) {
	rec, ok := h.loadRecording(c)
	if !ok {
		return
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		response.Error(c, models.ErrNotFound)
		return
	}
	c.FileAttachment(rec.FilePath, filepath.Base(rec.FilePath))
}

func (h *Handlers) handleRenameRecording(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	rec, ok := h.loadRecording(c)
	if !ok {
		return
	}
	err := awaitErr(c, func(cb func(error)) { h.repo.Async().RenameRecording(rec, req.Name, cb) })
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recording renamed", rec)
}

func (h *Handlers) handleDeleteRecording(c *gin.Context) {
	rec, ok := h.loadRecording(c)
	if !ok {
		return
	}
	if err := awaitErr(c, func(cb func(error)) { h.repo.Async().DeleteRecording(rec, cb) }); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recording deleted", nil)
}

func (h *Handlers) handleDeleteAllRecordings(c *gin.Context) {
	n, err := await(c, h.repo.Async().DeleteAllRecordings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "recordings deleted", gin.H{"deleted": n})
}
