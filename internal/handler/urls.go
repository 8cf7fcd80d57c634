package handlers

import (
	"ScheduledRecorder/internal/recorder"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/internal/scheduling"
	"ScheduledRecorder/pkg/backup"
	"ScheduledRecorder/pkg/config"
	"ScheduledRecorder/pkg/metrics"
	"ScheduledRecorder/pkg/middleware"
	"ScheduledRecorder/pkg/search"
	"ScheduledRecorder/pkg/sse"
	"ScheduledRecorder/pkg/websocket"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Options 处理器依赖
type Options struct {
	DB          *gorm.DB
	Repo        *repository.Repository
	Recorder    *recorder.Recorder
	Scheduling  *scheduling.Service
	Hub         *sse.Hub
	Search      *search.Index
	Backup      *backup.Backup
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	WebSocket   *websocket.Config
	Now         func() time.Time
}

type Handlers struct {
	db      *gorm.DB
	repo    *repository.Repository
	rec     *recorder.Recorder
	sched   *scheduling.Service
	hub     *sse.Hub
	search  *search.Index
	backup  *backup.Backup
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	ws      *websocket.Config
	now     func() time.Time
}

func NewHandlers(opts Options) *Handlers {
	if opts.Hub == nil {
		opts.Hub = sse.NewHub(0)
	}
	if opts.WebSocket == nil {
		opts.WebSocket = websocket.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handlers{
		db:      opts.DB,
		repo:    opts.Repo,
		rec:     opts.Recorder,
		sched:   opts.Scheduling,
		hub:     opts.Hub,
		search:  opts.Search,
		backup:  opts.Backup,
		metrics: opts.Metrics,
		limiter: opts.RateLimiter,
		ws:      opts.WebSocket,
		now:     opts.Now,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	prefix := "/api"
	if config.GlobalConfig != nil && config.GlobalConfig.APIPrefix != "" {
		prefix = config.GlobalConfig.APIPrefix
	}
	r := engine.Group(prefix)
	if h.limiter != nil {
		r.Use(h.limiter.Middleware())
	}
	r.Use(middleware.OperationLogMiddleware())

	h.registerSystemRoutes(r)
	h.registerRecordingRoutes(r)
	h.registerScheduleRoutes(r)
	h.registerSessionRoutes(r)

	// 表的实时视图，?topics=recordings,schedules
	r.GET("/live", h.handleLive)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.POST("/rate-limiter/config", h.UpdateRateLimiterConfig)

		system.POST("/reconcile", h.handleReconcile)

		system.POST("/backup", h.handleBackup)
	}
}

func (h *Handlers) registerRecordingRoutes(r *gin.RouterGroup) {
	recordings := r.Group("recordings")
	{
		recordings.GET("", h.handleListRecordings)

		recordings.GET("/count", h.handleCountRecordings)

		recordings.GET("/search", h.handleSearchRecordings)

		recordings.GET("/:id", h.handleGetRecording)

		recordings.GET("/:id/file", h.handleDownloadRecording)

		recordings.PUT("/:id", h.handleRenameRecording)

		recordings.DELETE("/:id", h.handleDeleteRecording)

		recordings.DELETE("", h.handleDeleteAllRecordings)
	}
}

func (h *Handlers) registerScheduleRoutes(r *gin.RouterGroup) {
	schedules := r.Group("schedules")
	{
		schedules.GET("", h.handleListSchedules)

		schedules.GET("/count", h.handleCountSchedules)

		schedules.GET("/next", h.handleNextSchedule)

		schedules.GET("/default", h.handleDefaultWindow)

		schedules.GET("/overlap", h.handleCountOverlapping)

		schedules.GET("/:id", h.handleGetSchedule)

		schedules.POST("", middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{}), h.handleCreateSchedule)

		schedules.PUT("/:id", h.handleEditSchedule)

		schedules.DELETE("/:id", h.handleDeleteSchedule)

		schedules.DELETE("", h.handleDeleteAllSchedules)
	}
}

func (h *Handlers) registerSessionRoutes(r *gin.RouterGroup) {
	session := r.Group("session")
	{
		session.GET("", h.handleSessionStatus)

		session.POST("/start", h.handleStartRecording)

		session.POST("/stop", h.handleStopRecording)

		session.GET("/events", h.handleSessionEvents)

		session.GET("/ws", h.handleSessionWebSocket)
	}
}
