package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 录音指标
	recordingsStarted   *prometheus.CounterVec
	recordingsCompleted prometheus.Counter
	recordingDuration   prometheus.Histogram
	recordingActive     prometheus.Gauge

	// 定时任务指标
	scheduleSweeps  prometheus.Counter
	schedulesPurged prometheus.Counter
	alarmArmed      prometheus.Gauge
	alarmNextUnix   prometheus.Gauge

	// 仓库指标
	repoOperations *prometheus.CounterVec
	reconcileFixes *prometheus.CounterVec

	rateLimit *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
}

// NewMetrics 创建指标管理器，所有指标注册在独立的 registry 上
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		recordingsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recorder_sessions_started_total",
				Help: "Recording sessions started, by origin",
			},
			[]string{"origin"},
		),
		recordingsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_sessions_completed_total",
			Help: "Recording sessions stopped and saved",
		}),
		recordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_session_duration_seconds",
			Help:    "Length of completed recordings",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 10800},
		}),
		recordingActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_session_active",
			Help: "1 while a recording session is capturing",
		}),

		scheduleSweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_sweeps_total",
			Help: "Sweep-and-arm passes executed",
		}),
		schedulesPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_windows_purged_total",
			Help: "Expired schedule windows removed by sweeps",
		}),
		alarmArmed: f.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_alarm_armed",
			Help: "1 when a wake-up alarm is armed",
		}),
		alarmNextUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_alarm_next_timestamp_seconds",
			Help: "Unix time of the armed wake-up, 0 when none",
		}),

		repoOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_operations_total",
				Help: "Repository operations by name and result",
			},
			[]string{"op", "result"},
		),
		reconcileFixes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_reconcile_fixes_total",
				Help: "Rows or files repaired by reconciliation",
			},
			[]string{"kind"},
		),

		rateLimit: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_requests_total",
				Help: "Requests seen by the rate limiter, by route and result",
			},
			[]string{"route", "result"},
		),

		cacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		}),
		cacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		}),
	}
}

// Registry 暴露给 /metrics 处理器和测试
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordHTTPRequest 记录HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordingStarted(origin string) {
	if m == nil {
		return
	}
	m.recordingsStarted.WithLabelValues(origin).Inc()
	m.recordingActive.Set(1)
}

func (m *Metrics) RecordingStopped(length time.Duration) {
	if m == nil {
		return
	}
	m.recordingActive.Set(0)
	m.recordingsCompleted.Inc()
	m.recordingDuration.Observe(length.Seconds())
}

// RecordingAborted 录音启动失败或强制释放
func (m *Metrics) RecordingAborted() {
	if m == nil {
		return
	}
	m.recordingActive.Set(0)
}

func (m *Metrics) Sweep(purged int64) {
	if m == nil {
		return
	}
	m.scheduleSweeps.Inc()
	m.schedulesPurged.Add(float64(purged))
}

// AlarmArmed 记录闹钟状态，零值时间表示未挂起
func (m *Metrics) AlarmArmed(at time.Time) {
	if m == nil {
		return
	}
	if at.IsZero() {
		m.alarmArmed.Set(0)
		m.alarmNextUnix.Set(0)
		return
	}
	m.alarmArmed.Set(1)
	m.alarmNextUnix.Set(float64(at.Unix()))
}

func (m *Metrics) RepoOperation(op string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.repoOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ReconcileFix(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.reconcileFixes.WithLabelValues(kind).Add(float64(n))
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}

// RateLimited 记录限流结果
func (m *Metrics) RateLimited(route string, allowed bool) {
	if m == nil {
		return
	}
	result := "allow"
	if !allowed {
		result = "deny"
	}
	m.rateLimit.WithLabelValues(route, result).Inc()
}
