package config

import (
	"ScheduledRecorder/pkg/logger"
	"ScheduledRecorder/pkg/scheduler"
	"ScheduledRecorder/pkg/util"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config 进程配置，全部来自环境变量或 .env.<APP_ENV> 文件
type Config struct {
	DBDriver          string        `env:"DB_DRIVER" validate:"omitempty,oneof=sqlite mysql pg"`
	DSN               string        `env:"DSN"`
	Log               logger.LogConfig
	Addr              string        `env:"ADDR" validate:"required"`
	Mode              string        `env:"MODE" validate:"omitempty,oneof=debug release test"`
	APIPrefix         string        `env:"API_PREFIX" validate:"startswith=/"`
	MonitorPrefix     string        `env:"MONITOR_PREFIX"`
	RecordingsDir     string        `env:"RECORDINGS_DIR" validate:"required"`
	HighQuality       bool          `env:"HIGH_QUALITY"`
	CaptureBackend    string        `env:"CAPTURE_BACKEND" validate:"oneof=synthetic arecord ffmpeg"`
	CaptureDevice     string        `env:"CAPTURE_DEVICE"`
	IOWorkers         int64         `env:"IO_WORKERS" validate:"gte=1,lte=64"`
	SweepGrace        time.Duration `env:"SWEEP_GRACE" validate:"gte=0"`
	AlarmCheck        time.Duration `env:"ALARM_CHECK_INTERVAL" validate:"gte=0"`
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE"`
	CacheTTL          time.Duration `env:"CACHE_TTL" validate:"gte=0"`
	BackupEnabled     bool          `env:"BACKUP_ENABLED"`
	BackupPath        string        `env:"BACKUP_PATH" validate:"required_if=BackupEnabled true BackupTarget local"`
	BackupSchedule    string        `env:"BACKUP_SCHEDULE" validate:"required_if=BackupEnabled true"`
	BackupTarget      string        `env:"BACKUP_TARGET" validate:"oneof=local minio"`
	RateLimit         string        `env:"RATE_LIMIT"`
	SearchIndexPath   string        `env:"SEARCH_INDEX_PATH"`
	DefaultLanguage   string        `env:"DEFAULT_LANGUAGE" validate:"omitempty,oneof=en zh"`
}

var GlobalConfig *Config

var validate = validator.New()

// envFileErr Load 时 .env 文件加载失败的原因；日志尚未初始化，由调用方在 Init 之后输出
var envFileErr error

// EnvFileError 返回最近一次 Load 未能加载 .env 文件的原因，成功加载时为 nil
func EnvFileError() error { return envFileErr }

// Load 读取环境并校验，结果写入 GlobalConfig
func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFileErr = nil
	if err := util.LoadEnv(env); err != nil {
		envFileErr = fmt.Errorf("load .env for %q: %w", env, err)
	}

	// 2. 组装配置
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// FromEnv 从当前进程环境组装配置，缺省值在此补齐
func FromEnv() *Config {
	return &Config{
		DBDriver: util.GetEnvOr("DB_DRIVER", "sqlite"),
		DSN:      util.GetEnvOr("DSN", "recorder.db"),
		Addr:     util.GetEnvOr("ADDR", ":8080"),
		Mode:     util.GetEnvOr("MODE", "release"),
		Log: logger.LogConfig{
			Level:      util.GetEnvOr("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		APIPrefix:         util.GetEnvOr("API_PREFIX", "/api"),
		MonitorPrefix:     util.GetEnvOr("MONITOR_PREFIX", "/metrics"),
		RecordingsDir:     util.GetEnvOr("RECORDINGS_DIR", "recordings"),
		HighQuality:       util.GetBoolEnv("HIGH_QUALITY"),
		CaptureBackend:    util.GetEnvOr("CAPTURE_BACKEND", "synthetic"),
		CaptureDevice:     util.GetEnvOr("CAPTURE_DEVICE", "default"),
		IOWorkers:         withDefault(util.GetIntEnv("IO_WORKERS"), 4),
		SweepGrace:        util.GetDurationEnv("SWEEP_GRACE", 5*time.Minute),
		AlarmCheck:        util.GetDurationEnv("ALARM_CHECK_INTERVAL", scheduler.DefaultCheckInterval),
		ReconcileSchedule: util.GetEnvOr("RECONCILE_SCHEDULE", "@every 15m"),
		CacheTTL:          util.GetDurationEnv("CACHE_TTL", 5*time.Minute),
		BackupEnabled:     util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:        util.GetEnv("BACKUP_PATH"),
		BackupSchedule:    util.GetEnv("BACKUP_SCHEDULE"),
		BackupTarget:      util.GetEnvOr("BACKUP_TARGET", "local"),
		RateLimit:         util.GetEnvOr("RATE_LIMIT", "120-M"),
		SearchIndexPath:   util.GetEnv("SEARCH_INDEX_PATH"),
		DefaultLanguage:   util.GetEnvOr("DEFAULT_LANGUAGE", "en"),
	}
}

// Validate 校验字段约束
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func withDefault(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
