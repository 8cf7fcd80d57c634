package handlers

import (
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/middleware"
	"ScheduledRecorder/pkg/response"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UpdateRateLimiterConfig 更新限流配置
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	if h.limiter == nil {
		response.Fail(c, "rate limiter disabled", nil)
		return
	}
	var cfg middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	h.limiter.UpdateConfig(cfg)
	response.Success(c, "rate limiter config updated", nil)
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	body := gin.H{"status": "healthy"}
	if h.rec != nil {
		body["recorder"] = h.rec.Status().Phase
	}
	if h.sched != nil {
		if at, ok := h.sched.Pending(); ok {
			body["next_alarm"] = at
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) handleReconcile(c *gin.Context) {
	rep, err := h.repo.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "reconciled", rep)
}

func (h *Handlers) handleBackup(c *gin.Context) {
	if h.backup == nil {
		response.Fail(c, "backup not configured", nil)
		return
	}
	key, err := h.backup.Execute(c.Request.Context())
	if err != nil {
		logger.Error("manual backup failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Success(c, "backup written", gin.H{"key": key})
}
