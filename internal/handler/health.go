package handler

import (
	"context"
	"net/http"
	"time"

	"deposit-reconciler/internal/handler/response"
	"deposit-reconciler/internal/service/reconciler"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler 存活检查，附带最近一轮对账的摘要
type HealthHandler struct {
	db         *gorm.DB
	lastReport func() *reconciler.CycleReport
}

func NewHealthHandler(db *gorm.DB, lastReport func() *reconciler.CycleReport) *HealthHandler {
	return &HealthHandler{db: db, lastReport: lastReport}
}

// HealthCheck 数据库不可用时返回 503，网络失败只标记 DEGRADED
// @Summary Check reconciler health
// @Description Datastore ping plus a summary of the last reconcile cycle
// @Tags system
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "UP",
		"service": "deposit-reconciler",
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		body["status"] = "DOWN"
		body["db"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, response.Response{Code: http.StatusServiceUnavailable, Message: "database unavailable", Data: body})
		return
	}

	if h.lastReport != nil {
		if r := h.lastReport(); r != nil {
			t := r.Totals()
			failed := r.Failed()
			body["last_cycle"] = gin.H{
				"cycle_id":    r.CycleID,
				"finished_at": r.FinishedAt,
				"failed":      failed,
				"unmatched":   t.Unmatched,
				"credited":    t.Credited,
				"error":       r.Error,
			}
			if len(failed) > 0 || r.Error != "" {
				body["status"] = "DEGRADED"
			}
		}
	}
	response.Success(c, body)
}

func (h *HealthHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
