package main

import (
	handlers "ScheduledRecorder/internal/handler"
	"ScheduledRecorder/internal/listeners"
	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/internal/recorder"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/internal/scheduling"
	"ScheduledRecorder/pkg/backup"
	"ScheduledRecorder/pkg/cache"
	"ScheduledRecorder/pkg/capture"
	"ScheduledRecorder/pkg/config"
	"ScheduledRecorder/pkg/i18n"
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/metrics"
	"ScheduledRecorder/pkg/middleware"
	"ScheduledRecorder/pkg/response"
	"ScheduledRecorder/pkg/scheduler"
	"ScheduledRecorder/pkg/search"
	"ScheduledRecorder/pkg/sse"
	"ScheduledRecorder/pkg/util"
	stores "ScheduledRecorder/pkg/storage"
	"ScheduledRecorder/pkg/websocket"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 配置与日志
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.GlobalConfig
	if err := logger.Init(&cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	if err := config.EnvFileError(); err != nil {
		logger.Warn("no .env file loaded, using process environment", zap.Error(err))
	}
	gin.SetMode(cfg.Mode)

	// 2. 数据库
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	m := metrics.NewMetrics()

	// 3. 仓库，启动时先对账一次
	repo, err := repository.New(repository.Options{
		DB:       db,
		Dir:      cfg.RecordingsDir,
		Workers:  cfg.IOWorkers,
		Cache:    cache.NewGoCache(cache.LocalConfig{DefaultExpiration: cfg.CacheTTL, CleanupInterval: 2 * cfg.CacheTTL}),
		CacheTTL: cfg.CacheTTL,
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	defer repo.Close()
	if rep, err := repo.Reconcile(ctx); err != nil {
		logger.Warn("startup reconcile failed", zap.Error(err))
	} else {
		logger.Info("startup reconcile done", zap.Int("rows_removed", rep.RowsRemoved), zap.Int("files_registered", rep.FilesRegistered))
	}

	// 4. 录音服务与调度服务互相引用：调度到点启动录音，录音消费窗口后请求重新调度
	factory, err := capture.NewFactory(cfg.CaptureBackend, cfg.CaptureDevice)
	if err != nil {
		return err
	}
	var rec *recorder.Recorder
	sched := scheduling.New(scheduling.Options{
		Repo:    repo,
		Fire:    func(ctx context.Context) error { return rec.StartHeadless(ctx) },
		Alarm:   scheduler.NewAlarm().WithCheckInterval(cfg.AlarmCheck),
		Grace:   cfg.SweepGrace,
		Metrics: m,
	})
	rec = recorder.New(recorder.Options{
		Repo:    repo,
		Factory: factory,
		Backend: cfg.CaptureBackend,
		Quality: capture.QualityFor(cfg.HighQuality),
		Trigger: sched.Trigger,
		OnIdle: func() {
			logger.Info("recording finished with no client attached")
		},
		Metrics: m,
	})

	hub := sse.NewHub(0)
	stopListeners := listeners.InitRecorderListeners(repo, sched, hub)
	idx, err := search.New(search.Config{IndexPath: cfg.SearchIndexPath, QueryTimeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer idx.Close()
	stopIndex := listeners.InitSearchListener(repo, idx)
	if err := sched.TriggerAndWait(ctx, "boot"); err != nil {
		logger.Warn("boot sweep failed", zap.Error(err))
	}

	// 5. 周期任务：对账与备份
	cr := scheduler.NewCron(time.Local)
	if _, err := cr.AddWithCtx(cfg.ReconcileSchedule, func(ctx context.Context) {
		if _, err := repo.Reconcile(ctx); err != nil {
			logger.Warn("periodic reconcile failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	var bk *backup.Backup
	if cfg.BackupEnabled {
		store, err := backupStore(cfg)
		if err != nil {
			return err
		}
		bk = backup.New(db, cfg.DBDriver, store)
		if err := bk.Schedule(cr, cfg.BackupSchedule); err != nil {
			return fmt.Errorf("schedule backup: %w", err)
		}
	}
	cr.Start()

	// 6. HTTP
	tr, err := i18n.NewTranslator(cfg.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("init translator: %w", err)
	}
	if dir := util.GetEnv("LOCALES_DIR"); dir != "" {
		if err := tr.LoadDir(dir); err != nil {
			logger.Warn("locales dir not loaded", zap.String("dir", dir), zap.Error(err))
		}
	}
	response.UseTranslator(tr)

	engine := gin.New()
	engine.Use(gin.Recovery(), metrics.MonitorMiddleware(m))
	m.RegisterRoutes(engine, cfg.MonitorPrefix)

	wsCfg := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(wsCfg); err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		SkipPaths:  []string{cfg.APIPrefix + "/system/health"},
		AddHeaders: true,
	}, nil).WithObserver(m)

	handlers.NewHandlers(handlers.Options{
		DB:          db,
		Repo:        repo,
		Recorder:    rec,
		Scheduling:  sched,
		Hub:         hub,
		Search:      idx,
		Backup:      bk,
		Metrics:     m,
		RateLimiter: limiter,
		WebSocket:   wsCfg,
	}).Register(engine)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("recorder daemon listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	// 7. 退出顺序：先停入口，再停调度，最后保存进行中的录音
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cr.Stop()
	stopListeners()
	stopIndex()
	sched.Close()
	if err := rec.Shutdown(shutdownCtx); err != nil {
		logger.Warn("recorder shutdown", zap.Error(err))
	}
	return nil
}

func backupStore(cfg *config.Config) (stores.Store, error) {
	if cfg.BackupTarget == "minio" {
		s, err := stores.NewMinioStore()
		if err != nil {
			return nil, fmt.Errorf("minio backup store: %w", err)
		}
		return s, nil
	}
	return stores.NewLocalStore(cfg.BackupPath), nil
}
