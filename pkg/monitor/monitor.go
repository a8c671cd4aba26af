package monitor

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// 运维 HTTP 接口的请求指标，按路由模板聚合
var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Ops API requests by route and status code.",
	}, []string{"method", "route", "code"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Ops API latency.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})
)

var initOnce sync.Once

// Init 注册 HTTP 指标和业务指标，可重复调用
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpLatency)
	})
	InitBusinessMetrics()
}

// PrometheusMiddleware 记录请求量和耗时，/metrics 自身和未匹配的路由不统计
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
