package server

import (
	"time"

	_ "deposit-reconciler/docs/swagger"
	"deposit-reconciler/internal/handler"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/monitor"
	"deposit-reconciler/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Handlers 路由依赖的 handler
type Handlers struct {
	Health   *handler.HealthHandler
	Deposits *handler.DepositHandler
}

// NewHTTPRouter 内部运维接口，不对外暴露
func NewHTTPRouter(h Handlers, log *zap.Logger) *gin.Engine {
	monitor.Init()
	validator.Init(string(model.NetworkTRC20), string(model.NetworkBEP20))

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log), monitor.PrometheusMiddleware())

	r.GET("/health", h.Health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		api.GET("/deposits/unmatched", h.Deposits.ListUnmatched)
		api.GET("/checkpoints", h.Deposits.ListCheckpoints)
	}
	return r
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
