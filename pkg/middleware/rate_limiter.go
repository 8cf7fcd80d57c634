package middleware

import (
	"ScheduledRecorder/pkg/logger"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimiterConfig 控制接口限流
//
// Rate 格式同 limiter："100-M"、"10-S"
// PerRouteRates: {"/api/recordings/:id": "30-M"}
// WhitelistCIDRs: ["127.0.0.1/32"]
// SkipPaths: ["/api/session/events"] 前缀匹配
type RateLimiterConfig struct {
	Rate           string            `json:"rate"`
	PerRouteRates  map[string]string `json:"per_route_rates"`
	WhitelistCIDRs []string          `json:"whitelist_cidrs"`
	SkipPaths      []string          `json:"skip_paths"`
	AddHeaders     bool              `json:"add_headers"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	RateLimited(route string, allowed bool)
}

// RateLimiter 按客户端 IP 限流，每种速率缓存一个 limiter
type RateLimiter struct {
	mu             sync.RWMutex
	cfg            RateLimiterConfig
	store          limiter.Store
	observer       MetricsObserver
	limitersByRate map[string]*limiter.Limiter
	whiteCIDRs     []*net.IPNet
}

func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	l := &RateLimiter{store: store, limitersByRate: make(map[string]*limiter.Limiter)}
	l.UpdateConfig(cfg)
	return l
}

// WithObserver 配置指标观察者
func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

func (l *RateLimiter) Config() RateLimiterConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// UpdateConfig 动态更新限流配置
func (l *RateLimiter) UpdateConfig(cfg RateLimiterConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.whiteCIDRs = l.whiteCIDRs[:0]
	for _, c := range cfg.WhitelistCIDRs {
		if _, ipnet, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			l.whiteCIDRs = append(l.whiteCIDRs, ipnet)
		}
	}
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := l.Config()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if pathSkipped(cfg, route) {
			c.Next()
			return
		}
		ip := clientIPFromRequest(c)
		if l.whitelisted(ip) {
			c.Next()
			return
		}

		lim := l.getLimiter(pickRateForRoute(cfg, route))
		ctx, err := lim.Get(c, "ip:"+ip)
		if err != nil {
			logger.Warn("rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}
		if cfg.AddHeaders {
			setStandardHeaders(c, ctx)
		}
		if ctx.Reached {
			l.report(route, false)
			c.Header("Retry-After", strconv.Itoa(secondsUntil(ctx.Reset)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "msg": "Too Many Requests"})
			return
		}
		l.report(route, true)
		c.Next()
	}
}

func (l *RateLimiter) report(route string, allowed bool) {
	l.mu.RLock()
	obs := l.observer
	l.mu.RUnlock()
	if obs != nil {
		obs.RateLimited(route, allowed)
	}
}

func (l *RateLimiter) whitelisted(ip string) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, n := range l.whiteCIDRs {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}

func (l *RateLimiter) getLimiter(rateStr string) *limiter.Limiter {
	l.mu.RLock()
	lim, ok := l.limitersByRate[rateStr]
	l.mu.RUnlock()
	if ok {
		return lim
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limitersByRate[rateStr]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	lim = limiter.New(l.store, r)
	l.limitersByRate[rateStr] = lim
	return lim
}

func pickRateForRoute(cfg RateLimiterConfig, route string) string {
	if r, ok := cfg.PerRouteRates[route]; ok && r != "" {
		return r
	}
	if cfg.Rate != "" {
		return cfg.Rate
	}
	return "10-S"
}

func pathSkipped(cfg RateLimiterConfig, path string) bool {
	for _, pref := range cfg.SkipPaths {
		if pref != "" && strings.HasPrefix(path, pref) {
			return true
		}
	}
	return false
}

func clientIPFromRequest(c *gin.Context) string {
	return strings.TrimPrefix(c.ClientIP(), "::ffff:")
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.Itoa(secondsUntil(ctx.Reset)))
}

func secondsUntil(unix int64) int {
	sec := int(time.Until(time.Unix(unix, 0)).Seconds())
	if sec < 0 {
		return 0
	}
	return sec
}
