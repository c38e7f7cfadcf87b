package controller

import (
	"context"
	"time"

	"quizo/internal/util"
	"quizo/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger 由 QuizService 实现，转发到作答记录存储
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	Store  Pinger
	Driver string
}

func NewHealthController(store Pinger, driver string) *HealthController {
	return &HealthController{Store: store, Driver: driver}
}

// @Summary 健康检查
// @Description 检查服务状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := c.Store.Ping(pingCtx); err != nil {
		logger.Log.Warn("Attempt store unavailable", zap.String("driver", c.Driver), zap.Error(err))
		util.ServiceUnavailable(ctx, "Attempt store unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"store": gin.H{
				"driver": c.Driver,
				"status": "up",
			},
		},
	})
}
