package middleware

import (
	"ScheduledRecorder/pkg/cache"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Store      cache.Cache
}

// IdempotencyMiddleware 带相同幂等键的重复写请求在 TTL 内返回 409。
// 没有幂等键的请求直接放行。
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewGoCache(cache.LocalConfig{DefaultExpiration: cfg.TTL, CleanupInterval: time.Minute})
	}
	// 检查与写入需要原子
	var mu sync.Mutex
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		key = "idem:" + c.Request.Method + ":" + c.FullPath() + ":" + key
		ctx := context.Background()
		mu.Lock()
		if _, exists := cfg.Store.Get(ctx, key); exists {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "msg": "duplicate request"})
			return
		}
		_ = cfg.Store.Set(ctx, key, true, cfg.TTL)
		mu.Unlock()
		c.Next()
	}
}
