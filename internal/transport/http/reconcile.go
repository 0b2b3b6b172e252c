package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"listsync/backend/internal/reconcile"
)

// triggerReconcile 立即执行一次协调
// POST /api/v1/reconcile
//
// 同一进程内同时只允许一次协调，重复触发返回 409。
// 客户端断开不会中断协调，正在执行的外部命令不会被终止。
func (h *Handler) triggerReconcile(c *gin.Context) {
	result, err := h.runner.TryRun(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, reconcile.ErrRunInProgress) {
			writeError(c, h.log, err)
			return
		}

		h.log.Error("reconciliation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Code: CodeInternalError,
			Msg:  MsgReconcileFailed,
			Data: result,
		})
		return
	}

	Success(c, result)
}
