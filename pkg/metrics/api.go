package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler 返回 Prometheus 抓取端点
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// RegisterRoutes 注册监控路由
func (m *Metrics) RegisterRoutes(r gin.IRouter, path string) {
	if path == "" {
		path = "/metrics"
	}
	r.GET(path, m.Handler())
}
